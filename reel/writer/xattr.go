package writer

import (
	"github.com/hashicorp/go-hclog"
	"github.com/indrora/reel/reel/format"
	"github.com/pkg/xattr"
)

// Extended attributes set on finished recordings so file browsers can show them
// without parsing the file.
const (
	XATTR_MAP = "user.reel.map"
	XATTR_ID  = "user.reel.id"
)

// tagFile is best effort: plenty of filesystems have no user xattrs.
func tagFile(log hclog.Logger, path string, ext format.HeaderExt) {
	attrs := map[string][]byte{
		XATTR_MAP: []byte(ext.Map),
		XATTR_ID:  []byte(ext.ID.String()),
	}
	for name, value := range attrs {
		if err := xattr.Set(path, name, value); err != nil {
			log.Debug("could not set extended attribute", "path", path, "attr", name, "error", err)
			return
		}
	}
}
