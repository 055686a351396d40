package artifacts

// MaxInlineDataBytes is the maximum size (in bytes) for returning artifact
// data inline rather than through a store reference.
const MaxInlineDataBytes int64 = 1024 * 1024
