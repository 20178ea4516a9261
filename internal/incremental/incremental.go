// Package incremental decides which walked files actually need rescanning
// by comparing each file's streamed content hash against the manifest's
// last-recorded hash for that file, so a scan after a small edit re-reads
// only the files that changed.
package incremental

import (
	"github.com/ruizrica/drift/internal/hashutil"
	"github.com/ruizrica/drift/internal/manifest"
	"github.com/ruizrica/drift/internal/walker"
)

// Plan returns the subset of files whose content hash differs from (or is
// absent from) the manifest's recorded hash. Files the walker already
// hashed (Options.ComputeHashes) reuse that hash; otherwise Plan streams
// the file through the same short-hash routine the walker uses, so no more
// of a file is read than hashing needs.
func Plan(files []walker.File, mf *manifest.Store) []walker.File {
	var changed []walker.File
	for _, f := range files {
		hash := f.Hash
		if hash == "" {
			h, err := hashutil.ShortFile(f.AbsPath)
			if err != nil {
				// unreadable now counts as changed; the scan step will
				// surface the read error itself.
				changed = append(changed, f)
				continue
			}
			hash = h
		}

		prior, ok := mf.FileHash(f.RelPath)
		if !ok || prior != hash {
			f.Hash = hash
			changed = append(changed, f)
		}
	}
	return changed
}
