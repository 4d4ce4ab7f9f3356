package transfer

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// writeFileSync creates path exclusively and fsyncs it before closing.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// publish stages data and meta in staging, then renames both into dir,
// metadata last, so a reader never sees a partial file.
func publish(staging, dir, name string, data []byte, metaName string, meta []byte) error {
	tmpData := filepath.Join(staging, name)
	tmpMeta := filepath.Join(staging, metaName)
	cleanup := func() {
		_ = os.Remove(tmpData)
		_ = os.Remove(tmpMeta)
	}

	if err := writeFileSync(tmpData, data); err != nil {
		cleanup()
		return transient("write", tmpData, err)
	}
	if err := writeFileSync(tmpMeta, meta); err != nil {
		cleanup()
		return transient("write", tmpMeta, err)
	}

	finalData := filepath.Join(dir, name)
	if err := os.Rename(tmpData, finalData); err != nil {
		cleanup()
		return transient("rename", finalData, err)
	}
	finalMeta := filepath.Join(dir, metaName)
	if err := os.Rename(tmpMeta, finalMeta); err != nil {
		_ = os.Remove(finalData)
		cleanup()
		return transient("rename", finalMeta, err)
	}
	if err := syncDir(dir); err != nil {
		return transient("sync", dir, err)
	}
	return nil
}

// listBatches returns batch data files of kind in dir, sorted by name.
func listBatches(dir string, k Kind) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isBatchFile(k, e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// moveInto renames name from src to dst. A missing source is not an error.
func moveInto(src, dst, name string) error {
	err := os.Rename(filepath.Join(src, name), filepath.Join(dst, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// touch marks a claim time so stale-claim recovery measures from the claim.
func touch(path string, at time.Time) error {
	return os.Chtimes(path, at, at)
}
