package patch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"howett.net/plist"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
	"github.com/opencore-vm/ocpatch/pkg/logger"
	"github.com/opencore-vm/ocpatch/pkg/plistutil"
)

// Result is the outcome of an Apply call.
type Result int

const (
	ResultFailed Result = iota
	ResultApplied
	ResultAlreadyPresent
)

func (r Result) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultAlreadyPresent:
		return "already-present"
	default:
		return "failed"
	}
}

const defaultLockTimeout = 10 * time.Second

var binaryPlistMagic = []byte("bplist00")

// Engine applies named patch records to an OpenCore config.plist exactly
// once each. Every failure branch leaves the target either byte-identical
// to its pre-call content or holding the fully committed result; the
// pre-mutation backup is kept on disk whenever anything went wrong.
type Engine struct {
	LockTimeout time.Duration

	runner   cmdrunner.Runner
	lookPath func(string) (string, error)
	verifyFn func(path string, comments []string) error
}

func NewEngine(runner cmdrunner.Runner) *Engine {
	e := &Engine{
		LockTimeout: defaultLockTimeout,
		runner:      runner,
	}
	if lp, ok := runner.(cmdrunner.LookPather); ok {
		e.lookPath = lp.LookPath
	}
	e.verifyFn = e.verifyWritten
	return e
}

// BackupPath derives the backup artifact's path for a target file. The
// naming is part of the operational contract: operators restore from it by
// hand when automatic restoration is impossible.
func BackupPath(path string) string {
	return path + ".backup"
}

func tempPath(path string) string {
	return path + ".tmp"
}

// Apply appends the records whose Comment is not yet present in the
// file's Kernel.Patch array, committing through a same-directory temp
// file and an atomic rename. Calling it again with the same records is a
// no-op reported as ResultAlreadyPresent.
func (e *Engine) Apply(ctx context.Context, path string, records []Record) (Result, error) {
	lock := NewFileLock(path)
	if err := lock.Acquire(ctx, e.LockTimeout); err != nil {
		return ResultFailed, err
	}
	defer lock.Release()

	backupPath := BackupPath(path)
	if _, err := os.Stat(backupPath); err != nil {
		if !os.IsNotExist(err) {
			return ResultFailed, errors.Wrapf(err, "failed to stat %s", backupPath)
		}
		if err := copyFile(path, backupPath); err != nil {
			return ResultFailed, errors.Wrap(err, "failed to create backup")
		}
	} else {
		// left over from an unfinished prior run; reuse it rather than
		// overwrite the only pristine copy
		logger.L().Warn("reusing existing backup", slog.String("path", backupPath))
	}

	// touched flips once the target file itself has been modified and a
	// failure therefore requires restoration
	touched := false
	fail := func(err error) (Result, error) {
		if touched {
			if restoreErr := copyFile(backupPath, path); restoreErr != nil {
				// restoration failed; the backup stays in place so the
				// operator always has a recovery path
				logger.L().Error("failed to restore backup",
					slog.String("backup", backupPath), slog.String("error", restoreErr.Error()))
			}
		}
		return ResultFailed, err
	}

	if err := e.normalize(ctx, path, &touched); err != nil {
		return fail(err)
	}

	doc, err := loadDocument(path)
	if err != nil {
		return fail(err)
	}

	present := existingComments(doc)
	var missing []Record
	for _, r := range records {
		if !present[r.Comment] {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		// no mutation occurred, the backup is redundant
		if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
			logger.L().Warn("failed to remove backup",
				slog.String("path", backupPath), slog.String("error", err.Error()))
		}
		return ResultAlreadyPresent, nil
	}

	if err := appendRecords(path, doc, missing); err != nil {
		return fail(err)
	}

	tmp := tempPath(path)
	if err := writeDocument(tmp, doc); err != nil {
		_ = os.Remove(tmp)
		return fail(err)
	}

	comments := make([]string, 0, len(missing))
	for _, r := range missing {
		comments = append(comments, r.Comment)
	}
	if err := e.verifyFn(tmp, comments); err != nil {
		_ = os.Remove(tmp)
		return fail(err)
	}

	// single atomic swap; concurrent readers see either the old or the
	// new content, never a partial write
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fail(errors.Wrapf(err, "failed to replace %s", path))
	}

	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		logger.L().Warn("failed to remove backup",
			slog.String("path", backupPath), slog.String("error", err.Error()))
	}
	return ResultApplied, nil
}

// normalize lints the on-disk bytes with plutil and coerces a binary
// plist to XML. plutil is an optional collaborator; when it is not
// installed the step is skipped entirely.
func (e *Engine) normalize(ctx context.Context, path string, touched *bool) error {
	if e.lookPath == nil {
		return nil
	}
	if _, err := e.lookPath("plutil"); err != nil {
		return nil
	}

	res, err := e.runner.Run(ctx, "plutil", "-lint", path)
	if err != nil {
		return errors.Wrap(err, "failed to run plutil")
	}
	if !res.Success() {
		return &DecodeError{Path: path, Err: errors.Errorf("plutil lint: %s", res.Output())}
	}

	header, err := readHeader(path, len(binaryPlistMagic))
	if err != nil {
		return err
	}
	if !bytes.Equal(header, binaryPlistMagic) {
		return nil
	}

	*touched = true
	res, err = e.runner.Run(ctx, "plutil", "-convert", "xml1", path)
	if err != nil {
		return errors.Wrap(err, "failed to run plutil")
	}
	if !res.Success() {
		return &DecodeError{Path: path, Err: errors.Errorf("plutil convert: %s", res.Output())}
	}
	return nil
}

func (e *Engine) verifyWritten(path string, comments []string) error {
	doc, err := loadDocument(path)
	if err != nil {
		return errors.Wrap(err, "failed to re-read written config")
	}
	present := existingComments(doc)
	var missing []string
	for _, c := range comments {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &VerificationError{Path: path, Missing: missing}
	}
	return nil
}

func loadDocument(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	var v interface{}
	if _, err := plist.Unmarshal(data, &v); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	root, err := plistutil.Root(v)
	if err != nil {
		return nil, &StructuralError{Path: path, Err: err}
	}
	return root, nil
}

// existingComments collects the Comment of every well-formed Kernel.Patch
// entry. An absent or wrong-typed Kernel or Patch value reads as "no
// patches present" here; the mutation step decides what is fatal.
func existingComments(root map[string]interface{}) map[string]bool {
	out := make(map[string]bool)
	kernel, ok, err := plistutil.DictAt(root, "Kernel")
	if err != nil || !ok {
		return out
	}
	arr, ok, err := plistutil.ArrayAt(kernel, "Patch")
	if err != nil || !ok {
		return out
	}
	for _, entry := range arr {
		d, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if c, ok := d["Comment"].(string); ok {
			out[c] = true
		}
	}
	return out
}

func appendRecords(path string, root map[string]interface{}, records []Record) error {
	kernel, ok, err := plistutil.DictAt(root, "Kernel")
	if err != nil {
		// a wrong-typed Kernel dict holds sibling sections we must not
		// destroy; never coerce it
		return &StructuralError{Path: path, Err: err}
	}
	if !ok {
		kernel = make(map[string]interface{})
		root["Kernel"] = kernel
	}

	arr, ok, err := plistutil.ArrayAt(kernel, "Patch")
	if err != nil {
		// tolerated repair, see DESIGN.md: Patch is a pure append target
		logger.L().Warn("Kernel.Patch has the wrong type, replacing with an empty array",
			slog.String("got", fmt.Sprintf("%T", kernel["Patch"])))
		arr = nil
	} else if !ok {
		arr = nil
	}

	for _, r := range records {
		arr = append(arr, r.dict())
	}
	kernel["Patch"] = arr
	return nil
}

func writeDocument(path string, root map[string]interface{}) error {
	data, err := plist.MarshalIndent(root, plist.XMLFormat, "\t")
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	// force the bytes to durable storage before the rename makes them
	// the config the firmware will read
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to sync %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", src)
	}
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(src); err == nil {
		mode = fi.Mode().Perm()
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write %s", dst)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to sync %s", dst)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", dst)
	}
	return nil
}

func readHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return buf[:read], nil
}
