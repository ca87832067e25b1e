// Package taxonomy classifies execution errors into stable codes,
// recommends remediation per code, and routes codes to the fallbacks a
// skill manifest declares for them.
package taxonomy
