package openocd

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultReadoutTemplate names readout files by target and capture time.
const DefaultReadoutTemplate = "{target}--{datetime}.bin"

// timestampLayout keeps readout names shell-friendly: no spaces or colons.
const timestampLayout = "2006-01-02--15-04-05"

// ReadoutName expands a readout filename template. Recognised fields are
// {target}, {interface}, {serial}, and {datetime}; target and interface
// expand to the stem of their config file (st_nucleo_l1 from
// "board/st_nucleo_l1.cfg"). Unknown fields are left untouched.
func (d *Driver) ReadoutName(template string, now time.Time) string {
	if template == "" {
		template = DefaultReadoutTemplate
	}
	r := strings.NewReplacer(
		"{target}", stem(d.opts.Target),
		"{interface}", stem(d.opts.Interface),
		"{serial}", d.opts.Serial,
		"{datetime}", now.Format(timestampLayout),
	)
	return r.Replace(template)
}

// stem returns the file name without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
