package extract

import (
	"encoding/base64"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

const (
	decryptLayers  = 3
	printableFirst = 32
	printableCount = 95 // ASCII 32..126
	keygenXOR      = 247
	keygenShift    = 5
)

// decryptSrc2 undoes the three-layer encryption applied to MegaCloud source
// lists. The plaintext is prefixed with its length as four decimal digits.
func decryptSrc2(src, clientKey, megacloudKey string) string {
	genKey := keygen2(megacloudKey, clientKey)
	if genKey == "" {
		return ""
	}

	data := []byte(atob(src))
	for i := decryptLayers; i > 0; i-- {
		data = reverseLayer(data, genKey, i)
	}

	if len(data) < 4 {
		return ""
	}
	n, err := strconv.Atoi(string(data[:4]))
	if err != nil || n < 0 || 4+n > len(data) {
		return ""
	}
	return string(data[4 : 4+n])
}

// lcg is the linear congruential generator both the shift and the shuffle
// stages draw from.
type lcg struct{ state uint64 }

func (r *lcg) next(n int) int {
	r.state = (r.state*1103515245 + 12345) & 0x7fffffff
	return int(r.state % uint64(n))
}

// hash32 is the 31-multiplier string hash truncated to 32 bits.
func hash32(s string) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = (h*31 + uint64(s[i])) & 0xffffffff
	}
	return h
}

func printable() []byte {
	chars := make([]byte, printableCount)
	for i := range chars {
		chars[i] = byte(printableFirst + i)
	}
	return chars
}

// reverseLayer undoes one layer: seeded shift, columnar transposition,
// then seeded substitution.
func reverseLayer(src []byte, genKey string, iteration int) []byte {
	layerKey := genKey + strconv.Itoa(iteration)

	rng := lcg{state: hash32(layerKey)}
	shifted := make([]byte, len(src))
	for i, c := range src {
		if c < printableFirst || int(c) >= printableFirst+printableCount {
			shifted[i] = c
			continue
		}
		idx := int(c) - printableFirst
		shifted[i] = byte(printableFirst + (idx-rng.next(printableCount)+printableCount)%printableCount)
	}

	out := columnarCipher2(shifted, layerKey)

	var reverse [256]byte
	for i := range reverse {
		reverse[i] = byte(i)
	}
	for i, c := range seedShuffle2(printable(), layerKey) {
		reverse[c] = byte(printableFirst + i)
	}
	for i, c := range out {
		out[i] = reverse[c]
	}
	return out
}

// keygen2 derives the layer key from the published MegaCloud key and the
// client key scraped from the embed page.
func keygen2(megacloudKey, clientKey string) string {
	tempKey := megacloudKey + clientKey
	if tempKey == "" {
		return ""
	}

	// h = c + h*31 + (h<<7) - h, reduced modulo 2^63-1 as it goes.
	mod := new(big.Int).SetUint64(math.MaxInt64)
	factor := big.NewInt(158)
	h := new(big.Int)
	for i := 0; i < len(tempKey); i++ {
		h.Mul(h, factor)
		h.Add(h, big.NewInt(int64(tempKey[i])))
		h.Mod(h, mod)
	}
	lHash := h.Int64()

	xored := make([]byte, len(tempKey))
	for i := 0; i < len(tempKey); i++ {
		xored[i] = tempKey[i] ^ keygenXOR
	}

	pivot := (int(lHash%int64(len(xored))) + keygenShift) % len(xored)
	rotated := append(xored[pivot:], xored[:pivot]...)

	leaf := reverseString(clientKey)
	interleaved := make([]byte, 0, len(rotated)+len(leaf))
	for i := 0; i < max(len(rotated), len(leaf)); i++ {
		if i < len(rotated) {
			interleaved = append(interleaved, rotated[i])
		}
		if i < len(leaf) {
			interleaved = append(interleaved, leaf[i])
		}
	}

	limit := min(96+int(lHash%33), len(interleaved))
	key := interleaved[:limit]
	for i, c := range key {
		key[i] = byte(int(c)%printableCount + printableFirst)
	}
	return string(key)
}

// seedShuffle2 is a Fisher-Yates shuffle driven by the key's hash.
func seedShuffle2(chars []byte, key string) []byte {
	rng := lcg{state: hash32(key)}
	out := append([]byte(nil), chars...)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.next(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// columnarCipher2 writes src column by column, visiting columns in the
// stable sorted order of the key's bytes, and reads it back row by row.
// The grid is padded with spaces.
func columnarCipher2(src []byte, key string) []byte {
	cols := len(key)
	if cols == 0 {
		return append([]byte(nil), src...)
	}
	rows := (len(src) + cols - 1) / cols

	grid := make([]byte, rows*cols)
	for i := range grid {
		grid[i] = ' '
	}

	order := make([]int, cols)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return key[order[a]] < key[order[b]] })

	pos := 0
	for _, col := range order {
		for row := 0; row < rows && pos < len(src); row++ {
			grid[row*cols+col] = src[pos]
			pos++
		}
	}
	return grid
}

// atob decodes base64 the way browsers do: padding and whitespace are optional.
func atob(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '=', '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)

	out, err := base64.RawStdEncoding.DecodeString(cleaned)
	if err != nil {
		return ""
	}
	return string(out)
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
