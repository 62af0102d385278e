package archetype

import "time"

// timeAfter is indirected so tests can shrink backoff waits without
// depending on wall-clock time.
var timeAfter = time.After
