package hostfs

// Administrative entries that are never listed, opened or chmod'ed by clients.
// The .vgrid* dirs host server-side cgi/wsgi scripts and .htaccess guards http access.
const (
	HtaccessName = ".htaccess"
	TrashDirName = ".trash"
)

var invisibleNames = []string{
	HtaccessName,
	".vgridwiki",
	".vgridscm",
	".vgridtracker",
	".vgridforum",
	TrashDirName,
}
