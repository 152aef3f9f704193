package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/vLabayen/giltzarrapo/internal/exitcodes"
	"github.com/vLabayen/giltzarrapo/internal/giltza"
)

// argContainer holds the parsed command line.
type argContainer struct {
	encrypt, decrypt, keygen bool
	speed, debug, quiet      bool

	chunkSize int
	carrier   int
	slow      bool
	tries     int
	auth      string
	key       string
	passfile  string
	keypass   string

	bits int
	dir  string
	name string

	infile  string
	outfile string
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `giltzarrapo hides an RSA key exchange inside an AES-encrypted file.

Usage:
  giltzarrapo -e -k KEY.pub [options] INFILE OUTFILE   encrypt
  giltzarrapo -d -k KEY [options] INFILE OUTFILE       decrypt
  giltzarrapo -g [options]                             generate an RSA pair
  giltzarrapo --speed                                  benchmark the crypto

Options:
%s`, fs.FlagUsages())
}

// parseCliOpts parses os.Args and validates flag combinations.
func parseCliOpts() *argContainer {
	var args argContainer
	fs := flag.NewFlagSet("giltzarrapo", flag.ContinueOnError)
	fs.SortFlags = false

	fs.BoolVarP(&args.encrypt, "encrypt", "e", false, "encrypt INFILE into OUTFILE")
	fs.BoolVarP(&args.decrypt, "decrypt", "d", false, "decrypt INFILE into OUTFILE")
	fs.BoolVarP(&args.keygen, "generate", "g", false, "generate an RSA key pair")
	fs.StringVarP(&args.key, "key", "k", "", "public key (-e) or private key (-d) PEM file")
	fs.IntVar(&args.chunkSize, "chunksize", giltza.DefaultChunkSize, "block size in bytes, must be a power of two")
	fs.IntVar(&args.carrier, "block", giltza.AutoCarrier, "explicit carrier block index (default: auto-select)")
	fs.BoolVar(&args.slow, "slow", false, "do not embed the auth tag (slower, more deniable decryption)")
	fs.StringVar(&args.auth, "auth", "", "auth tag sidecar file to write (-e) or consult (-d)")
	fs.IntVar(&args.tries, "tries", 0, "carrier selection retry budget (default 10)")
	fs.StringVar(&args.passfile, "passfile", "", "read the password from the first line of this file")
	fs.StringVar(&args.keypass, "keypass-file", "", "read the private key passphrase from this file")
	fs.IntVar(&args.bits, "bits", giltza.DefaultBits, "RSA modulus length for -g, must be a power of two")
	fs.StringVar(&args.dir, "dir", "", "output directory for -g (default: working directory, ~ expands)")
	fs.StringVar(&args.name, "name", "", "key file name for -g (default giltza_rsa)")
	fs.BoolVar(&args.speed, "speed", false, "run the crypto benchmark and exit")
	fs.BoolVar(&args.debug, "debug", false, "enable debug output")
	fs.BoolVarP(&args.quiet, "quiet", "q", false, "suppress progress output")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcodes.Usage)
	}

	modes := 0
	for _, m := range []bool{args.encrypt, args.decrypt, args.keygen, args.speed} {
		if m {
			modes++
		}
	}
	if modes != 1 {
		usage(fs)
		os.Exit(exitcodes.Usage)
	}
	if args.encrypt || args.decrypt {
		if args.key == "" {
			fmt.Fprintln(os.Stderr, "missing -k KEY")
			os.Exit(exitcodes.Usage)
		}
		if fs.NArg() != 2 {
			usage(fs)
			os.Exit(exitcodes.Usage)
		}
		args.infile = fs.Arg(0)
		args.outfile = fs.Arg(1)
	}
	return &args
}
