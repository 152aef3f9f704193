// giltzarrapo encrypts files with a hybrid scheme: the AES session key
// travels inside the ciphertext as one RSA-encrypted block at a secret
// position.
package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vLabayen/giltzarrapo/internal/exitcodes"
	"github.com/vLabayen/giltzarrapo/internal/giltza"
	"github.com/vLabayen/giltzarrapo/internal/readpassword"
	"github.com/vLabayen/giltzarrapo/internal/speed"
	"github.com/vLabayen/giltzarrapo/internal/tlog"
)

func main() {
	args := parseCliOpts()
	tlog.SetDebug(args.debug)
	tlog.SetQuiet(args.quiet)

	switch {
	case args.speed:
		speed.Run()
	case args.keygen:
		doKeygen(args)
	case args.encrypt:
		doEncrypt(args)
	case args.decrypt:
		doDecrypt(args)
	}
}

func doKeygen(args *argContainer) {
	passphrase, err := readpassword.Twice("RSA key passphrase (empty for none)")
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.Passphrase)
	}
	dir, err := expandTilde(args.dir)
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.Usage)
	}
	start := time.Now()
	privPath, pubPath, err := giltza.GenerateRSAPair(passphrase, dir, args.name, args.bits)
	if err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}
	tlog.Info.Printf("generated %d bit RSA pair in %v", args.bits, time.Since(start).Round(time.Millisecond))
	tlog.Info.Printf("private key: %s", privPath)
	tlog.Info.Printf("public key:  %s", pubPath)
}

func doEncrypt(args *argContainer) {
	password, err := filePassword(args.passfile, func() (string, error) {
		return readpassword.Twice("Password")
	})
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.Passphrase)
	}
	s, err := giltza.New(args.chunkSize)
	if err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}

	start := time.Now()
	if err := s.ReadPlain(args.infile); err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}
	tlog.Info.Printf("read %d blocks in %v", s.NumBlocks(), time.Since(start).Round(time.Millisecond))

	start = time.Now()
	if err := s.Encrypt(password, args.key, args.carrier, !args.slow, args.tries); err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}
	tlog.Info.Printf("encrypted in %v", time.Since(start).Round(time.Millisecond))

	start = time.Now()
	if err := s.Save(args.outfile, args.auth); err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}
	tlog.Info.Printf("wrote %s in %v", args.outfile, time.Since(start).Round(time.Millisecond))
	if args.auth != "" {
		tlog.Info.Printf("wrote auth tag to %s", args.auth)
	}
}

func doDecrypt(args *argContainer) {
	password, err := filePassword(args.passfile, func() (string, error) {
		return readpassword.Once("Password")
	})
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.Passphrase)
	}
	s, err := giltza.New(args.chunkSize)
	if err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}

	start := time.Now()
	if err := s.ReadEncrypted(args.infile, args.auth); err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}
	tlog.Info.Printf("read %d blocks in %v", s.NumBlocks(), time.Since(start).Round(time.Millisecond))

	passphrase := ""
	if args.keypass != "" {
		if passphrase, err = readpassword.FromFile(args.keypass); err != nil {
			tlog.Fatal.Println(err)
			os.Exit(exitcodes.Passphrase)
		}
	}

	start = time.Now()
	err = s.Decrypt(password, args.key, passphrase, args.carrier)
	if errors.Is(err, giltza.ErrWrongPassphrase) && args.keypass == "" {
		// The key turned out to be protected; ask and retry once.
		if passphrase, err = readpassword.Once("Key passphrase"); err == nil {
			err = s.Decrypt(password, args.key, passphrase, args.carrier)
		}
	}
	if err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}
	tlog.Info.Printf("decrypted in %v", time.Since(start).Round(time.Millisecond))

	start = time.Now()
	if err := s.Save(args.outfile, ""); err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(err)
	}
	tlog.Info.Printf("wrote %s in %v", args.outfile, time.Since(start).Round(time.Millisecond))
}

// filePassword prefers the password file over the interactive prompt.
func filePassword(path string, prompt func() (string, error)) (string, error) {
	if path != "" {
		return readpassword.FromFile(path)
	}
	return prompt()
}

// expandTilde resolves a leading "~" against the user's home directory.
// This convenience belongs to the CLI, not to the core.
func expandTilde(path string) (string, error) {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}
