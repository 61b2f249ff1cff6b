// Package verify decides whether a record read back from a target holds the
// data that was written, and localizes the first difference when it does
// not.
//
// A Dispatcher picks one strategy per record, in priority order:
//
//  1. block tags: per-unit tag verification (fields and CRC), then the
//     optional prefix, then the unit payload;
//  2. block address: IOT or lbdata records, with a whole-record fast path
//     for IOT data without timestamps;
//  3. prefix: the per-unit prefix, then the remaining bytes;
//  4. plain: byte comparison against the regenerated pattern.
//
// A mismatch always fails the call with a *MiscompareError. Forensic
// analysis and reread classification only add detail to that error.
package verify
