// Package ir provides the value types every other docmodel package shares.
//
// This package contains foundation types only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the bottom layer
// with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use Int (int64) for numbers
//   - Value is sealed: Null, String, Int, Bool, Array, Object
//   - The nil Value means "absent"; it encodes as JSON null on the wire
//   - Paths ([]string) are the only addressing scheme
//   - Usage errors carry an ErrorCode and are matched with errors.As
package ir
