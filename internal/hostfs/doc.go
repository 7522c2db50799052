package hostfs

// Package hostfs provides safe access helpers for files below a daemon's user root.
//
// Every client supplied path goes through FsPath before it touches the disk:
//   client "subdir/file.txt"  -> <root>/subdir/file.txt
//   client "/etc/passwd"      -> <root>/etc/passwd
//   client "../../etc/passwd" -> ErrInvalidPath
//
// Credential files are read through ReadFile so concurrent readers and the
// atomic writers in this package never observe a half-written file.
