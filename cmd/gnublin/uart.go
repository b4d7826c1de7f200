package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/gnublin"
	"github.com/mklimuk/gnublin/cmd/gnublin/console"
	"github.com/mklimuk/gnublin/uart"
)

var uartCmd = cli.Command{
	Name:  "uart",
	Usage: "SC16IS7x0 I2C UART bridge",
	Subcommands: cli.Commands{
		&uartInitCmd,
		&uartConfigCmd,
		&uartWriteCmd,
		&uartReadCmd,
		&uartSendCmd,
		&uartTermCmd,
		&uartPollCmd,
		&uartStatusCmd,
		&uartGPIOCmd,
	},
}

// withUART runs fn on an uninitialized handle built from the board config.
func withUART(c *cli.Context, fn func(ctx context.Context, d *uart.SC16IS7x0) error) error {
	return withBoard(c, func(ctx context.Context, b *board) error {
		d, err := b.uart()
		if err != nil {
			return console.Fail("invalid uart configuration", err)
		}
		return fn(ctx, d)
	})
}

var uartInitCmd = cli.Command{
	Name:  "init",
	Usage: "reset the chip and program the configured line settings",
	Action: func(c *cli.Context) error {
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			err := d.Init(ctx)
			if err != nil {
				return console.Fail("could not initialize uart", err)
			}
			baud, err := d.BaudRate(ctx)
			if err != nil {
				return console.Fail("could not read baud rate", err)
			}
			format, err := d.DataFormat(ctx)
			if err != nil {
				return console.Fail("could not read data format", err)
			}
			console.PInfof(console.PictoPlug, "%s at %#02x: %s baud %s, fifo %v",
				d.Variant().Name, d.Address(), console.White(baud), console.White(format), d.FifoEnabled())
			return nil
		})
	},
}

var uartConfigCmd = cli.Command{
	Name:  "config",
	Usage: "change line settings of an initialized chip",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "baud", Usage: "baud rate"},
		&cli.StringFlag{Name: "format", Usage: "data format, e.g. 8N1"},
		&cli.StringFlag{Name: "flow", Usage: "flow control: disabled, rts, cts, rts-cts"},
		&cli.BoolFlag{Name: "fifo", Usage: "enable FIFOs"},
		&cli.IntFlag{Name: "rx-trigger", Usage: "RX FIFO trigger level"},
		&cli.IntFlag{Name: "tx-trigger", Usage: "TX FIFO trigger level"},
		&cli.BoolFlag{Name: "loopback", Usage: "internal loopback"},
	},
	Action: func(c *cli.Context) error {
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			if c.IsSet("baud") {
				if err := d.SetBaudRate(ctx, uint32(c.Uint("baud"))); err != nil {
					return console.Fail("could not set baud rate", err)
				}
			}
			if c.IsSet("format") {
				format, err := uart.ParseDataFormat(c.String("format"))
				if err != nil {
					return console.Fail("invalid format", err)
				}
				if err := d.SetDataFormat(ctx, format); err != nil {
					return console.Fail("could not set format", err)
				}
			}
			if c.IsSet("flow") {
				flow, err := uart.ParseFlowControl(c.String("flow"))
				if err != nil {
					return console.Fail("invalid flow control", err)
				}
				if err := d.SetFlowControl(ctx, flow); err != nil {
					return console.Fail("could not set flow control", err)
				}
			}
			if c.IsSet("fifo") {
				if err := d.EnableFifo(ctx, c.Bool("fifo")); err != nil {
					return console.Fail("could not switch fifo", err)
				}
			}
			if c.IsSet("rx-trigger") {
				if err := d.SetRxTriggerLevel(ctx, c.Int("rx-trigger")); err != nil {
					return console.Fail("could not set rx trigger", err)
				}
			}
			if c.IsSet("tx-trigger") {
				if err := d.SetTxTriggerLevel(ctx, c.Int("tx-trigger")); err != nil {
					return console.Fail("could not set tx trigger", err)
				}
			}
			if c.IsSet("loopback") {
				if err := d.EnableLoopback(ctx, c.Bool("loopback")); err != nil {
					return console.Fail("could not switch loopback", err)
				}
			}
			console.PInfof(console.PictoFinish, "configuration applied")
			return nil
		})
	},
}

var uartWriteCmd = cli.Command{
	Name:      "write",
	Usage:     "transmit the given text",
	ArgsUsage: "<text>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "hex", Usage: "argument is hex encoded"},
		&cli.BoolFlag{Name: "crlf", Usage: "append CR LF"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		data := []byte(c.Args().Get(0))
		if c.Bool("hex") {
			var err error
			data, err = hex.DecodeString(c.Args().Get(0))
			if err != nil {
				return console.Exit(1, "could not decode data: %v", err)
			}
		}
		if c.Bool("crlf") {
			data = append(data, '\r', '\n')
		}
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			n, err := d.Write(ctx, data)
			if err != nil {
				return console.Fail(fmt.Sprintf("write failed after %d bytes", n), err)
			}
			console.PInfof(console.PictoOutbox, "%s bytes sent", console.White(n))
			return nil
		})
	},
}

var uartReadCmd = cli.Command{
	Name:  "read",
	Usage: "print received bytes until the timeout expires",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "timeout", Value: time.Second},
		&cli.BoolFlag{Name: "hex", Usage: "hex dump received bytes"},
	},
	Action: func(c *cli.Context) error {
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()
			var out io.Writer = console.Writer()
			if c.Bool("hex") {
				dumper := hex.Dumper(out)
				defer func() { _ = dumper.Close() }()
				out = dumper
			}
			total, err := pump(ctx, d, out)
			if err != nil {
				return console.Fail("read failed", err)
			}
			console.PInfof(console.PictoInbox, "%s bytes received", console.White(total))
			return nil
		})
	},
}

// pump copies received bytes to out until ctx is done.
func pump(ctx context.Context, d *uart.SC16IS7x0, out io.Writer) (int, error) {
	buf := make([]byte, 64)
	total := 0
	for {
		n, err := d.Read(ctx, buf)
		if err != nil {
			return total, err
		}
		total += n
		if n > 0 {
			_, _ = out.Write(buf[:n])
			continue
		}
		select {
		case <-ctx.Done():
			return total, nil
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var uartSendCmd = cli.Command{
	Name:      "send",
	Usage:     "stream a file to the uart",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		f, err := os.Open(c.Args().Get(0))
		if err != nil {
			return console.Fail("could not open file", err)
		}
		defer func() { _ = f.Close() }()
		info, err := f.Stat()
		if err != nil {
			return console.Fail("could not stat file", err)
		}
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			bar := progressbar.DefaultBytes(info.Size(), "sending")
			n, err := io.Copy(io.MultiWriter(d.Stream(ctx), bar), f)
			if err != nil {
				return console.Fail(fmt.Sprintf("transfer interrupted after %d bytes", n), err)
			}
			_ = bar.Finish()
			console.PInfof(console.PictoFinish, "%s sent", info.Name())
			return nil
		})
	},
}

var uartTermCmd = cli.Command{
	Name:  "term",
	Usage: "interactive line terminal",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "eol", Value: "crlf", Usage: "line ending: cr, lf or crlf"},
	},
	Action: func(c *cli.Context) error {
		eol, ok := map[string]string{"cr": "\r", "lf": "\n", "crlf": "\r\n"}[c.String("eol")]
		if !ok {
			return console.Exit(1, "unknown line ending %q", c.String("eol"))
		}
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return console.Fail("could not open terminal", err)
			}
			defer func() { _ = rl.Close() }()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				_, err := pump(ctx, d, rl.Stdout())
				if err != nil && ctx.Err() == nil {
					slog.Error("receive failed", "error", err)
				}
			}()
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return console.Fail("terminal error", err)
				}
				if _, err := d.Write(ctx, []byte(line+eol)); err != nil {
					console.Errorf("write failed: %v", err)
				}
			}
		})
	},
}

var uartPollCmd = cli.Command{
	Name:  "poll",
	Usage: "enable interrupts and report them until interrupted",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "int", Value: cli.NewStringSlice("rhr", "rls"), Usage: "interrupt sources"},
		&cli.DurationFlag{Name: "interval", Value: 20 * time.Millisecond},
	},
	Action: func(c *cli.Context) error {
		mask, err := uart.ParseInterruptMask(c.StringSlice("int"))
		if err != nil {
			return console.Fail("invalid interrupt mask", err)
		}
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			if err := d.SetInterruptMask(ctx, mask); err != nil {
				return console.Fail("could not set interrupt mask", err)
			}
			d.OnDataReceived(func(data []byte) {
				console.PInfof(console.PictoInbox, "%q", data)
			})
			d.OnLineStatus(func(s uart.LineStatus) {
				console.PInfof(console.PictoBell, "line status overrun=%v parity=%v framing=%v break=%v",
					s.OverrunError(), s.ParityError(), s.FramingError(), s.BreakInterrupt())
			})
			d.OnModemStatus(func(s uart.ModemStatus) {
				console.PInfof(console.PictoBell, "modem status cts=%v dsr=%v ri=%v cd=%v", s.CTS(), s.DSR(), s.RI(), s.CD())
			})
			d.OnSpaceAvailable(func(space int) {
				console.PInfof(console.PictoOutbox, "tx space %d", space)
			})
			d.OnIOChanged(func(pin int, high bool) {
				console.PInfof(console.PictoPin, "io %d -> %s", pin, console.Level(high))
			})
			console.Infof("polling %s, interrupt to stop", console.White(mask))
			return pollLoop(ctx, c.Duration("interval"), d.PollInt)
		})
	},
}

func pollLoop(ctx context.Context, interval time.Duration, poll func(context.Context) (int, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		_, err := poll(ctx)
		if err != nil && ctx.Err() == nil {
			return console.Fail("poll failed", err)
		}
	}
}

type uartStatus struct {
	Variant  string `yaml:"variant"`
	Address  string `yaml:"address"`
	Baud     uint32 `yaml:"baud"`
	Format   string `yaml:"format"`
	RxLevel  int    `yaml:"rx_level"`
	TxSpace  int    `yaml:"tx_space"`
	LSR      string `yaml:"lsr"`
	MSR      string `yaml:"msr"`
	Pending  bool   `yaml:"interrupt_pending"`
	Cause    string `yaml:"interrupt_cause"`
	IOState  string `yaml:"io_state,omitempty"`
	CTS      bool   `yaml:"cts"`
	LineFail bool   `yaml:"line_error"`
}

var uartStatusCmd = cli.Command{
	Name:  "status",
	Usage: "dump line, modem and fifo state",
	Action: func(c *cli.Context) error {
		return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
			status, err := readUARTStatus(ctx, d)
			if err != nil {
				return console.Fail("could not read status", err)
			}
			enc := yaml.NewEncoder(console.Writer())
			defer func() { _ = enc.Close() }()
			if err := enc.Encode(status); err != nil {
				return console.Exit(1, "encoding error: %s", console.Red(err))
			}
			return nil
		})
	},
}

func readUARTStatus(ctx context.Context, d *uart.SC16IS7x0) (uartStatus, error) {
	s := uartStatus{Variant: d.Variant().Name, Address: fmt.Sprintf("%#02x", d.Address())}
	var err error
	if s.Baud, err = d.BaudRate(ctx); err != nil {
		return s, err
	}
	format, err := d.DataFormat(ctx)
	if err != nil {
		return s, err
	}
	s.Format = format.String()
	if s.RxLevel, err = d.AvailableRxBytes(ctx); err != nil {
		return s, err
	}
	if s.TxSpace, err = d.AvailableTxSpace(ctx); err != nil {
		return s, err
	}
	lsr, err := d.LineStatus(ctx)
	if err != nil {
		return s, err
	}
	s.LSR, s.LineFail = fmt.Sprintf("%#02x", byte(lsr)), lsr.HasError()
	msr, err := d.ModemStatus(ctx)
	if err != nil {
		return s, err
	}
	s.MSR, s.CTS = fmt.Sprintf("%#02x", byte(msr)), msr.CTS()
	cause, err := d.WhichInt(ctx)
	if err != nil {
		return s, err
	}
	s.Pending, s.Cause = cause != uart.NoInterrupt, cause.String()
	if d.Variant().HasGPIO() {
		port, err := d.ReadPort(ctx)
		if err != nil {
			return s, err
		}
		s.IOState = fmt.Sprintf("%08b", port)
	}
	return s, nil
}

var uartGPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "general purpose I/O of the SC16IS750/760",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:      "mode",
			ArgsUsage: "<pin> <in|out>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
				}
				pin, err := strconv.Atoi(c.Args().Get(0))
				if err != nil {
					return console.Exit(1, "invalid pin: %v", err)
				}
				dir, err := gnublin.ParseDirection(c.Args().Get(1))
				if err != nil {
					return console.Exit(1, "%v", err)
				}
				return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
					if err := d.PinMode(ctx, pin, dir); err != nil {
						return console.Fail("could not set pin mode", err)
					}
					console.PInfof(console.PictoPin, "pin %d is now %s", pin, console.White(dir))
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "write",
			ArgsUsage: "<pin> <0|1>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
				}
				pin, err := strconv.Atoi(c.Args().Get(0))
				if err != nil {
					return console.Exit(1, "invalid pin: %v", err)
				}
				high, err := parseBool(c.Args().Get(1))
				if err != nil {
					return console.Exit(1, "%v", err)
				}
				return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
					if err := d.DigitalWrite(ctx, pin, high); err != nil {
						return console.Fail("could not write pin", err)
					}
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "read",
			ArgsUsage: "[pin]",
			Action: func(c *cli.Context) error {
				return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
					if c.NArg() == 0 {
						port, err := d.ReadPort(ctx)
						if err != nil {
							return console.Fail("could not read port", err)
						}
						console.PInfof(console.PictoPin, "I/O: %s (%08b)", console.Hex(port), port)
						return nil
					}
					pin, err := strconv.Atoi(c.Args().Get(0))
					if err != nil {
						return console.Exit(1, "invalid pin: %v", err)
					}
					high, err := d.DigitalRead(ctx, pin)
					if err != nil {
						return console.Fail("could not read pin", err)
					}
					console.PInfof(console.PictoPin, "pin %d: %s", pin, console.Level(high))
					return nil
				})
			},
		},
		&cli.Command{
			Name:  "watch",
			Usage: "report input changes until interrupted",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "mask", Value: "0xFF", Usage: "pins to watch"},
				&cli.DurationFlag{Name: "interval", Value: 20 * time.Millisecond},
			},
			Action: func(c *cli.Context) error {
				mask, err := strconv.ParseUint(c.String("mask"), 0, 8)
				if err != nil {
					return console.Exit(1, "invalid mask: %v", err)
				}
				return withUART(c, func(ctx context.Context, d *uart.SC16IS7x0) error {
					if err := d.InitIO(ctx, uart.IOControlDefault); err != nil {
						return console.Fail("could not initialize I/O", err)
					}
					if err := d.PortIntEnable(ctx, byte(mask)); err != nil {
						return console.Fail("could not enable I/O interrupts", err)
					}
					d.OnIOChanged(func(pin int, high bool) {
						console.PInfof(console.PictoPin, "pin %d -> %s", pin, console.Level(high))
					})
					console.Infof("watching pins %s", strings.ToUpper(fmt.Sprintf("%#02x", mask)))
					return pollLoop(ctx, c.Duration("interval"), d.PollInt)
				})
			},
		},
	},
}
