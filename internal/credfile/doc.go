// Package credfile parses the per-protocol credential files kept in user homes:
//
//	<home>/.ssh/authorized_keys        public keys, '#' comments allowed
//	<home>/.davs/authorized_passwords  password hashes, one per line
//	<home>/.ftps/authorized_digests    protocol digests, one per line
//
// The daemon only reads these files. Parsing never fails on a single bad
// line; broken keys are reported next to the usable ones.
package credfile
