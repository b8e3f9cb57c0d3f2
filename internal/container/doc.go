// Package container encodes the on-disk envelope of an encrypted store.
//
// Layout:
//
//	[magic "FINCRYPT" 8][version 1][salt 16][nonce 12][ciphertext||tag ...]
//
// The salt lives in the header so a single atomic rename replaces salt and
// ciphertext together. Decode rejects short input, bad magic and unknown
// versions before any key material is involved.
package container
