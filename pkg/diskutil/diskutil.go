// Package diskutil wraps the macOS diskutil command line tool. Its textual
// output is version-dependent, so every field is extracted with anchored
// regexes and missing fields degrade to zero values instead of failing.
package diskutil

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
)

// Partition is one row of `diskutil list`.
type Partition struct {
	Identifier string
	Disk       string
	TypeName   string
	Name       string
}

// Info is the subset of `diskutil info` fields the tool relies on.
type Info struct {
	DeviceIdentifier string
	DeviceNode       string
	VolumeName       string
	PartitionType    string
	PartOfWhole      string
	Mounted          bool
	MountPoint       string
}

// ExitError reports a diskutil invocation that exited non-zero.
type ExitError struct {
	Cmdline string
	Result  cmdrunner.Result
}

func (e *ExitError) Error() string {
	out := e.Result.Output()
	if out == "" {
		out = "no output"
	}
	return e.Cmdline + ": " + out
}

// IsResourceBusy reports whether err looks like the transient "resource
// busy" condition raised while disk arbitration still holds the device.
func IsResourceBusy(err error) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	out := strings.ToLower(exitErr.Result.Output())
	return strings.Contains(out, "resource busy") || strings.Contains(out, "resource temporarily unavailable")
}

type Client struct {
	runner cmdrunner.Runner
}

func NewClient(runner cmdrunner.Runner) *Client {
	return &Client{runner: runner}
}

var (
	diskHeaderRe = regexp.MustCompile(`^/dev/(disk\d+)\s`)
	// index, TYPE, optional NAME, SIZE, IDENTIFIER
	partitionRowRe = regexp.MustCompile(`^\s*\d+:\s+(\S+)\s+(.*?)\s*[+*]?\d+(?:\.\d+)?\s+[KMGTPE]?B\s+(disk\d+(?:s\d+)?)\s*$`)
	infoFieldRe    = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 /()-]*?):\s+(.*\S)\s*$`)
	mountedAtRe    = regexp.MustCompile(`mounted at (.+)$`)
)

// List enumerates all partitions reported by `diskutil list`.
func (c *Client) List(ctx context.Context) ([]Partition, error) {
	res, err := c.runner.Run(ctx, "diskutil", "list")
	if err != nil {
		return nil, errors.Wrap(err, "failed to run diskutil list")
	}
	if !res.Success() {
		return nil, &ExitError{Cmdline: "diskutil list", Result: res}
	}

	var (
		parts []Partition
		disk  string
	)
	for _, line := range strings.Split(res.Stdout, "\n") {
		if m := diskHeaderRe.FindStringSubmatch(line); m != nil {
			disk = m[1]
			continue
		}
		m := partitionRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		parts = append(parts, Partition{
			Identifier: m[3],
			Disk:       disk,
			TypeName:   m[1],
			Name:       strings.TrimSpace(m[2]),
		})
	}
	return parts, nil
}

// Info queries `diskutil info` for a device identifier or mount path.
func (c *Client) Info(ctx context.Context, target string) (Info, error) {
	res, err := c.runner.Run(ctx, "diskutil", "info", target)
	if err != nil {
		return Info{}, errors.Wrapf(err, "failed to run diskutil info %s", target)
	}
	if !res.Success() {
		return Info{}, &ExitError{Cmdline: "diskutil info " + target, Result: res}
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(res.Stdout, "\n") {
		if m := infoFieldRe.FindStringSubmatch(line); m != nil {
			fields[m[1]] = m[2]
		}
	}

	info := Info{
		DeviceIdentifier: fields["Device Identifier"],
		DeviceNode:       fields["Device Node"],
		VolumeName:       fields["Volume Name"],
		PartitionType:    fields["Partition Type"],
		PartOfWhole:      fields["Part of Whole"],
		MountPoint:       fields["Mount Point"],
	}
	switch strings.ToLower(fields["Mounted"]) {
	case "yes":
		info.Mounted = true
	default:
		// Some diskutil versions omit the Mounted field for unmounted
		// volumes; a present mount point is treated as authoritative.
		info.Mounted = info.MountPoint != ""
	}
	return info, nil
}

// Mount mounts a device identifier or volume name. The returned path may be
// empty on success when the tool's output did not include it; callers
// re-query Info in that case.
func (c *Client) Mount(ctx context.Context, target string) (string, error) {
	res, err := c.runner.Run(ctx, "diskutil", "mount", target)
	if err != nil {
		return "", errors.Wrapf(err, "failed to run diskutil mount %s", target)
	}
	if !res.Success() {
		return "", &ExitError{Cmdline: "diskutil mount " + target, Result: res}
	}
	if m := mountedAtRe.FindStringSubmatch(strings.TrimSpace(res.Stdout)); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return "", nil
}

// Unmount unmounts a device identifier or mount path.
func (c *Client) Unmount(ctx context.Context, target string, force bool) error {
	args := []string{"unmount"}
	if force {
		args = append(args, "force")
	}
	args = append(args, target)

	res, err := c.runner.Run(ctx, "diskutil", args...)
	if err != nil {
		return errors.Wrapf(err, "failed to run diskutil unmount %s", target)
	}
	if !res.Success() {
		return &ExitError{Cmdline: "diskutil " + strings.Join(args, " "), Result: res}
	}
	return nil
}

// SIPStatus reports the System Integrity Protection status line from
// csrutil, used as a diagnostic hint after exhausted mount attempts.
func (c *Client) SIPStatus(ctx context.Context) (string, error) {
	res, err := c.runner.Run(ctx, "csrutil", "status")
	if err != nil {
		return "", errors.Wrap(err, "failed to run csrutil status")
	}
	if !res.Success() {
		return "", &ExitError{Cmdline: "csrutil status", Result: res}
	}
	return strings.TrimSpace(res.Stdout), nil
}
