// sramcap drives an OpenOCD-connected STM32 board to erase flash, program
// images, and dump SRAM power-up state for PUF and TRNG analysis.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/hwsec-lab/sramlab/db"
	"github.com/hwsec-lab/sramlab/internal/capture"
	"github.com/hwsec-lab/sramlab/internal/config"
	"github.com/hwsec-lab/sramlab/internal/monitoring"
	"github.com/hwsec-lab/sramlab/internal/openocd"
)

const version = "0.3.0"

var (
	openocdPath = flag.String("openocd-path", "openocd", "OpenOCD binary")
	scriptsDir  = flag.String("openocd-scripts", "", "OpenOCD scripts directory (-s)")
	ifaceCfg    = flag.String("interface", "", "Interface config file (e.g. interface/stlink.cfg)")
	targetCfg   = flag.String("target", "", "Target config file (e.g. board/st_nucleo_l1.cfg)")
	combinedCfg = flag.String("config", "", "Combined config file replacing --interface and --target")
	probeSerial = flag.String("serial", "", "Probe serial (hla_serial) when several probes are connected")
	verbose     = flag.Bool("verbose", false, "Log OpenOCD invocations and output")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "flash":
		handleFlash(args)
	case "read":
		handleRead(args)
	case "write":
		handleWrite(args)
	case "capture":
		handleCapture(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Printf("sramcap version %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sramcap - SRAM capture tool for STM32 boards

Usage: sramcap [global flags] <command> [options]

Commands:
  flash      Mass erase flash and/or program an image
  read       Dump a memory region to a file
  write      Load a file into a memory region
  capture    Run a multi-round SRAM capture session into the database
  migrate    Manage the capture database schema
  version    Show sramcap version
  help       Show this help message

Global Flags (before the command):
  --openocd-path <bin>     OpenOCD binary (default: openocd)
  --openocd-scripts <dir>  OpenOCD scripts directory
  --interface <file>       Interface config (e.g. interface/stlink.cfg)
  --target <file>          Target config (e.g. board/st_nucleo_l1.cfg)
  --config <file>          Combined config replacing interface+target
  --serial <id>            Probe serial for multi-probe setups
  --verbose                Log OpenOCD invocations

Examples:
  # Erase flash so firmware cannot reinitialise SRAM
  sramcap --target board/st_nucleo_l1.cfg --interface interface/stlink.cfg flash --erase

  # Dump 80 KiB of SRAM
  sramcap --config nucleo.cfg read --address 0x20000000 --size 0x14000 --dir readouts

  # Record a 20-round capture session using a builtin board profile
  sramcap capture --profile st_nucleo_l1 --rounds 20 --dir readouts --db sramlab.db`)
}

// exitWith prints the error and exits, propagating the tool's own exit code
// when the failure came from OpenOCD.
func exitWith(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	var te *openocd.ToolError
	if errors.As(err, &te) && te.ExitCode > 0 {
		os.Exit(te.ExitCode)
	}
	os.Exit(1)
}

// driverOptions merges the global flags with an optional board profile. Flags
// win over profile values.
func driverOptions(p config.Profile) openocd.Options {
	opts := openocd.Options{
		Binary:     *openocdPath,
		ScriptsDir: *scriptsDir,
		Interface:  *ifaceCfg,
		Target:     *targetCfg,
		Config:     *combinedCfg,
		Serial:     *probeSerial,
		Verbose:    *verbose,
	}
	if opts.Interface == "" && p.Interface != nil {
		opts.Interface = *p.Interface
	}
	if opts.Target == "" && p.Target != nil {
		opts.Target = *p.Target
	}
	return opts
}

// resolveProfile loads the named profile, optionally from a JSON profile
// file. An empty name yields an empty profile.
func resolveProfile(name, path string) (config.Profile, error) {
	if name == "" {
		return config.Profile{}, nil
	}
	if path != "" {
		profiles, err := config.LoadProfiles(path)
		if err != nil {
			return config.Profile{}, err
		}
		p, ok := profiles[name]
		if !ok {
			return config.Profile{}, fmt.Errorf("profile %q not found in %s", name, path)
		}
		return p, nil
	}
	return config.Lookup(name)
}

func newDriver(p config.Profile) (*openocd.Driver, error) {
	return openocd.NewDriver(driverOptions(p), nil)
}

func handleFlash(args []string) {
	fs := flag.NewFlagSet("flash", flag.ExitOnError)
	erase := fs.Bool("erase", false, "Mass erase bank 0")
	image := fs.String("load", "", "Image to program into flash")
	profileName := fs.String("profile", "", "Board profile name")
	profilesPath := fs.String("profiles", "", "JSON profile file")
	fs.Parse(args)

	if !*erase && *image == "" {
		fmt.Fprintln(os.Stderr, "Error: flash needs --erase and/or --load <image>")
		fs.Usage()
		os.Exit(1)
	}

	profile, err := resolveProfile(*profileName, *profilesPath)
	if err != nil {
		exitWith(err)
	}
	driver, err := newDriver(profile)
	if err != nil {
		exitWith(err)
	}

	if *image != "" {
		if err := driver.FlashLoad(*image, *erase); err != nil {
			exitWith(err)
		}
		fmt.Printf("programmed %s\n", *image)
		return
	}

	if err := driver.FlashErase(); err != nil {
		exitWith(err)
	}
	fmt.Println("flash erased")
}

func handleRead(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	address := fs.String("address", "", "Start address (hex 0x... or decimal)")
	size := fs.String("size", "", "Byte count (hex 0x... or decimal)")
	dir := fs.String("dir", ".", "Directory for the readout file")
	template := fs.String("readout", "", "Readout filename template ({target}, {interface}, {serial}, {datetime})")
	profileName := fs.String("profile", "", "Board profile name (supplies address and size defaults)")
	profilesPath := fs.String("profiles", "", "JSON profile file")
	fs.Parse(args)

	profile, err := resolveProfile(*profileName, *profilesPath)
	if err != nil {
		exitWith(err)
	}

	addr, count, err := resolveRegion(profile, *address, *size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	driver, err := newDriver(profile)
	if err != nil {
		exitWith(err)
	}

	if err := os.MkdirAll(*dir, 0755); err != nil {
		exitWith(fmt.Errorf("failed to create readout directory: %w", err))
	}

	path := filepath.Join(*dir, driver.ReadoutName(*template, time.Now()))
	if err := driver.DumpSRAM(path, addr, count); err != nil {
		exitWith(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		exitWith(fmt.Errorf("readout file missing after dump: %w", err))
	}
	if info.Size() != int64(count) {
		exitWith(fmt.Errorf("readout %s has %d bytes, expected %d", path, info.Size(), count))
	}
	fmt.Printf("dumped 0x%X bytes from 0x%08X to %s\n", count, addr, path)
}

// resolveRegion picks the memory region from explicit flags, falling back to
// the profile's SRAM range.
func resolveRegion(p config.Profile, address, size string) (addr, count uint32, err error) {
	switch {
	case address != "":
		addr, err = config.ParseNum(address)
	case p.SRAMBase != nil:
		addr, err = p.Base()
	default:
		return 0, 0, fmt.Errorf("--address is required (or use --profile)")
	}
	if err != nil {
		return 0, 0, err
	}

	switch {
	case size != "":
		count, err = config.ParseNum(size)
	case p.SRAMSize != nil:
		count, err = p.Size()
	default:
		return 0, 0, fmt.Errorf("--size is required (or use --profile)")
	}
	if err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, fmt.Errorf("--size must be non-zero")
	}
	return addr, count, nil
}

func handleWrite(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	address := fs.String("address", "", "Start address (hex 0x... or decimal)")
	image := fs.String("image", "", "File to load into memory (required)")
	profileName := fs.String("profile", "", "Board profile name")
	profilesPath := fs.String("profiles", "", "JSON profile file")
	fs.Parse(args)

	if *image == "" {
		fmt.Fprintln(os.Stderr, "Error: --image flag is required")
		fs.Usage()
		os.Exit(1)
	}

	profile, err := resolveProfile(*profileName, *profilesPath)
	if err != nil {
		exitWith(err)
	}

	var addr uint32
	if *address != "" {
		addr, err = config.ParseNum(*address)
	} else if profile.SRAMBase != nil {
		addr, err = profile.Base()
	} else {
		err = fmt.Errorf("--address is required (or use --profile)")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	driver, err := newDriver(profile)
	if err != nil {
		exitWith(err)
	}
	if err := driver.LoadSRAM(*image, addr); err != nil {
		exitWith(err)
	}
	fmt.Printf("loaded %s at 0x%08X\n", *image, addr)
}

func handleCapture(args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	rounds := fs.Int("rounds", 10, "Number of capture rounds")
	profileName := fs.String("profile", "", "Board profile name (required)")
	profilesPath := fs.String("profiles", "", "JSON profile file")
	dir := fs.String("dir", "readouts", "Directory for readout files")
	label := fs.String("session", "", "Session label")
	deviceLabel := fs.String("device", "", "Device label (for uniqueness studies across boards)")
	dbPath := fs.String("db", "sramlab.db", "Path to the sqlite database")
	template := fs.String("readout", "", "Readout filename template")
	settle := fs.Duration("settle", 2*time.Second, "Delay between rounds when not prompting")
	prompt := fs.Bool("prompt", false, "Wait for the operator to power cycle the board between rounds")
	fs.Parse(args)

	if *profileName == "" {
		fmt.Fprintln(os.Stderr, "Error: --profile flag is required for capture")
		fs.Usage()
		os.Exit(1)
	}

	profile, err := resolveProfile(*profileName, *profilesPath)
	if err != nil {
		exitWith(err)
	}
	base, err := profile.Base()
	if err != nil {
		exitWith(err)
	}
	size, err := profile.Size()
	if err != nil {
		exitWith(err)
	}

	driver, err := newDriver(profile)
	if err != nil {
		exitWith(err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		exitWith(fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	params := capture.Params{
		Label:       *label,
		DeviceLabel: *deviceLabel,
		Profile:     *profileName,
		Target:      driver.Options().Target,
		Interface:   driver.Options().Interface,
		ProbeSerial: *probeSerial,
		SRAMBase:    base,
		SRAMSize:    size,
		Rounds:      *rounds,
		Dir:         *dir,
		Template:    *template,
		SettleDelay: *settle,
	}
	if *prompt {
		stdin := bufio.NewReader(os.Stdin)
		params.PowerCycle = func(round int) error {
			fmt.Printf("power cycle the board, then press Enter for round %d: ", round)
			_, err := stdin.ReadString('\n')
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := capture.NewRunner(driver, database, nil)
	session, err := runner.Run(ctx, params)
	if err != nil {
		if session != nil {
			monitoring.Logf("session %s aborted after %d rounds", session.SessionID, session.Rounds)
		}
		exitWith(err)
	}
	fmt.Printf("captured session %s: %d rounds in %s\n", session.SessionID, session.Rounds, *dir)
}

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "sramlab.db", "Path to the sqlite database")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: migrate needs a direction: up, down, status, or force <version>")
		os.Exit(1)
	}

	migrations, err := db.MigrationsFS()
	if err != nil {
		exitWith(err)
	}
	database, err := db.OpenDB(*dbPath)
	if err != nil {
		exitWith(err)
	}
	defer database.Close()

	switch direction := fs.Arg(0); direction {
	case "up":
		err = database.MigrateUp(migrations)
	case "down":
		err = database.MigrateDown(migrations)
	case "status":
		var version uint
		var dirty bool
		version, dirty, err = database.MigrateVersion(migrations)
		if err == nil {
			fmt.Printf("schema version %d (dirty=%v)\n", version, dirty)
		}
	case "force":
		// recovery path for a dirty schema: pin the recorded version without
		// running migrations
		if fs.NArg() < 2 {
			err = fmt.Errorf("migrate force needs a version number")
			break
		}
		var target int
		target, err = strconv.Atoi(fs.Arg(1))
		if err != nil {
			err = fmt.Errorf("invalid migration version %q: %w", fs.Arg(1), err)
			break
		}
		err = database.MigrateForce(migrations, target)
	default:
		err = fmt.Errorf("unknown migrate direction %q", direction)
	}
	if err != nil {
		exitWith(err)
	}
}
