// Package speed implements the "--speed" command-line option, similar to
// "openssl speed". It benchmarks the primitives giltzarrapo spends its
// time in: AES-ECB over the block body, the SHA digests of the key
// schedule, and the raw RSA carrier operations.
package speed

import (
	"crypto/rsa"
	"fmt"
	"testing"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/vLabayen/giltzarrapo/internal/cryptocore"
)

// The benchmarks run over the default 512-byte chunk.
const chunkSize = 512

// rsaBits matches the key generation default.
const rsaBits = 4096

// Run - run the speed test and print the results.
func Run() {
	model := cpuModelName()
	if model == "" {
		model = "unknown"
	}
	fmt.Printf("cpu: %s\n", model)
	fmt.Printf("chunk size: %d bytes, rsa: %d bits\n", chunkSize, rsaBits)

	key, err := rsa.GenerateKey(cryptocore.RandReader, rsaBits)
	if err != nil {
		fmt.Printf("RSA key generation failed: %v\n", err)
		return
	}

	bTable := []struct {
		name string
		f    func(*testing.B)
	}{
		{name: "AES-256-ECB encrypt", f: bECBEncrypt},
		{name: "AES-256-ECB decrypt", f: bECBDecrypt},
		{name: "SHA-256 key derive", f: bDeriveKey},
		{name: "SHA-512 auth tag", f: bAuthTag},
		{name: "RSA carrier encrypt", f: func(b *testing.B) { bRSAEncrypt(b, &key.PublicKey) }},
		{name: "RSA carrier decrypt", f: func(b *testing.B) { bRSADecrypt(b, key) }},
	}
	testing.Init()
	for _, b := range bTable {
		fmt.Printf("%-22s\t", b.name)
		mbs := mbPerSec(testing.Benchmark(b.f))
		if mbs > 0 {
			fmt.Printf("%9.2f MB/s\n", mbs)
		} else {
			fmt.Printf("    N/A\n")
		}
	}

	fmt.Println()
	runChunkSizeScaling()
}

// runChunkSizeScaling shows how AES-ECB throughput moves with the chunk
// size.
func runChunkSizeScaling() {
	fmt.Println("AES-256-ECB chunk size scaling:")
	testing.Init()
	for _, size := range []int{128, 256, 512, 1024, 2048, 4096} {
		fmt.Printf("%-8d bytes\t", size)
		mbs := mbPerSec(testing.Benchmark(func(b *testing.B) { bECBEncryptSize(b, size) }))
		if mbs > 0 {
			fmt.Printf("%9.2f MB/s\n", mbs)
		} else {
			fmt.Printf("    N/A\n")
		}
	}
}

func mbPerSec(r testing.BenchmarkResult) float64 {
	if r.Bytes <= 0 || r.T <= 0 || r.N <= 0 {
		return 0
	}
	return (float64(r.Bytes) * float64(r.N) / 1e6) / r.T.Seconds()
}

// cpuModelName returns the brand string of the first CPU, or "".
func cpuModelName() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return ""
	}
	return infos[0].ModelName
}

func bECBEncrypt(b *testing.B) {
	bECBEncryptSize(b, chunkSize)
}

func bECBEncryptSize(b *testing.B, size int) {
	c, err := cryptocore.NewECBCipher(cryptocore.RandBytes(cryptocore.KeyLen))
	if err != nil {
		b.Fatal(err)
	}
	in := cryptocore.RandBytes(size)
	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Encrypt(in); err != nil {
			b.Fatal(err)
		}
	}
}

func bECBDecrypt(b *testing.B) {
	c, err := cryptocore.NewECBCipher(cryptocore.RandBytes(cryptocore.KeyLen))
	if err != nil {
		b.Fatal(err)
	}
	ct, err := c.Encrypt(cryptocore.RandBytes(chunkSize))
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(chunkSize))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Decrypt(ct); err != nil {
			b.Fatal(err)
		}
	}
}

func bDeriveKey(b *testing.B) {
	block := cryptocore.RandBytes(chunkSize)
	pw := []byte("benchmark")
	b.SetBytes(int64(chunkSize))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cryptocore.Sha256Sum(block, pw)
	}
}

func bAuthTag(b *testing.B) {
	preimage := cryptocore.RandBytes(64)
	b.SetBytes(int64(len(preimage)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cryptocore.Sha512Sum(preimage)
	}
}

func bRSAEncrypt(b *testing.B, pub *rsa.PublicKey) {
	block := cryptocore.RandBytes(pub.Size())
	block[0] = 0 // stay below the modulus
	b.SetBytes(int64(len(block)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cryptocore.RSAEncryptBlock(pub, block); err != nil {
			b.Fatal(err)
		}
	}
}

func bRSADecrypt(b *testing.B, key *rsa.PrivateKey) {
	block := cryptocore.RandBytes(key.PublicKey.Size())
	block[0] = 0
	ct, err := cryptocore.RSAEncryptBlock(&key.PublicKey, block)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(block)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cryptocore.RSADecryptBlock(key, ct, len(block)); err != nil {
			b.Fatal(err)
		}
	}
}
