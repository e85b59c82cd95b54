// Package openocd drives an OpenOCD process to erase, program, and dump
// STM32 memory over a debug probe.
package openocd

import (
	"fmt"

	"github.com/hwsec-lab/sramlab/internal/execx"
	"github.com/hwsec-lab/sramlab/internal/monitoring"
)

// Options configure a Driver. Interface and Target name TCL config files
// relative to the OpenOCD scripts directory (e.g. "interface/stlink.cfg",
// "board/st_nucleo_l1.cfg"). Config, when set, replaces both: it points at a
// caller-provided TCL script that sources interface and target itself.
type Options struct {
	Binary     string // OpenOCD binary; defaults to "openocd" on PATH
	ScriptsDir string // passed as -s, where OpenOCD looks for TCL scripts
	Interface  string
	Target     string
	Config     string
	Serial     string // hla_serial, selects one probe when several are connected
	Verbose    bool
}

// Driver translates high-level flash/SRAM operations into OpenOCD
// invocations. All subprocess execution goes through an execx.Builder so the
// exact argv can be asserted in tests.
type Driver struct {
	opts    Options
	builder execx.Builder
}

// NewDriver validates that the OpenOCD binary resolves and returns a Driver.
func NewDriver(opts Options, builder execx.Builder) (*Driver, error) {
	if opts.Binary == "" {
		opts.Binary = "openocd"
	}
	if builder == nil {
		builder = execx.NewRealBuilder()
	}
	if lp, ok := builder.(execx.LookPather); ok {
		if _, err := lp.LookPath(opts.Binary); err != nil {
			return nil, fmt.Errorf("%s not found in the system: %w", opts.Binary, err)
		}
	}
	return &Driver{opts: opts, builder: builder}, nil
}

// Options returns a copy of the driver's configuration.
func (d *Driver) Options() Options {
	return d.opts
}

// prepare builds the argv prefix shared by every operation: script search
// path, interface/target (or combined config), probe selection, then
// init/reset/halt so the target is stopped before any memory access.
func (d *Driver) prepare() []string {
	args := []string{}
	if d.opts.ScriptsDir != "" {
		args = append(args, "-s", d.opts.ScriptsDir)
	}
	if d.opts.Config != "" {
		args = append(args, "-f", d.opts.Config)
	} else {
		args = append(args, "-f", d.opts.Interface, "-f", d.opts.Target)
	}
	if d.opts.Serial != "" {
		args = append(args, "-c", fmt.Sprintf("hla_serial %s", d.opts.Serial))
	}
	args = append(args, "-c", "init", "-c", "reset", "-c", "halt")
	return args
}

// run executes OpenOCD with the given arguments and propagates its exit
// status. Output is logged in verbose mode, and always on failure since
// OpenOCD reports probe and target errors only on stderr.
func (d *Driver) run(args []string) error {
	if d.opts.Verbose {
		monitoring.Logf("running %s %v", d.opts.Binary, args)
	}
	cmd := d.builder.Command(d.opts.Binary, args...)
	out, err := cmd.Run()
	if err != nil {
		return &ToolError{Output: string(out), ExitCode: execx.ExitCode(err), Err: err}
	}
	if d.opts.Verbose {
		monitoring.Logf("%s", out)
	}
	return nil
}

// FlashErase mass erases bank 0 of the target's flash. With no firmware to
// initialise it, SRAM holds its raw power-up state on the next boot.
func (d *Driver) FlashErase() error {
	args := d.prepare()
	args = append(args, "-c", "stm32lx mass_erase 0", "-c", "shutdown")
	return d.run(args)
}

// FlashLoad programs an executable image into flash. When erase is true the
// write is preceded by an erase of the affected sectors.
func (d *Driver) FlashLoad(image string, erase bool) error {
	args := d.prepare()
	verb := "stm32lx write_image"
	if erase {
		verb += " erase"
	}
	args = append(args,
		"-c", fmt.Sprintf("%s %s", verb, image),
		"-c", "reset", "-c", "run", "-c", "shutdown")
	return d.run(args)
}

// DumpSRAM reads size bytes of memory starting at addr into the file at path.
func (d *Driver) DumpSRAM(path string, addr, size uint32) error {
	args := d.prepare()
	args = append(args,
		"-c", fmt.Sprintf("dump_image %s 0x%08X 0x%X", path, addr, size),
		"-c", "shutdown")
	return d.run(args)
}

// LoadSRAM writes the file at path into memory starting at addr. The byte
// count is taken from the file itself.
func (d *Driver) LoadSRAM(path string, addr uint32) error {
	args := d.prepare()
	args = append(args,
		"-c", fmt.Sprintf("load_image %s 0x%08X", path, addr),
		"-c", "shutdown")
	return d.run(args)
}

// ToolError reports a failed OpenOCD invocation together with its combined
// output and exit code, so callers can propagate the code and surface the
// tool's own diagnostics.
type ToolError struct {
	Output   string
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("openocd failed with exit code %d: %s", e.ExitCode, e.Output)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
