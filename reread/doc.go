// Package reread classifies a data miscompare by reading the failing range
// again through an independent handle.
//
// A Classifier never repairs anything and never replaces the original
// failure. It only gathers evidence:
//
//   - the expected and corrupted buffers are saved before anything else,
//   - the range is reread (direct I/O when possible) up to Config.Limit times,
//   - each reread is saved, hashed, and compared with both the original
//     received bytes and the expected data.
//
// A reread equal to the original received data points at the write path
// (PossibleWriteFailure); a reread that now verifies points at the read path
// (PossibleReadFailure); anything else is Persistent.
package reread
