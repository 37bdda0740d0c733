package core

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Canonical encoding rules: keys sorted lexicographically, UTF-8,
// no non-semantic whitespace, numbers in decimal with no trailing zeros.
// Every transaction variant builds its signing/hash pre-image as a
// map[string]interface{} and runs it through canonicalEncode so that every
// node on the network agrees on the exact byte string being hashed/signed.

// oidPublicKeyECDSA and oidSecp256k1 let us build a real
// SubjectPublicKeyInfo around go-ethereum's secp256k1 curve; crypto/x509
// does not know this curve, so we construct the ASN.1 structure by hand
// instead of calling x509.MarshalPKIXPublicKey.
var (
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1       = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type ecPublicKeyInfo struct {
	Algo      pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// GenerateKeyPair creates a fresh secp256k1 keypair.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
}

// MarshalPublicKeyPEM encodes pub as a SubjectPublicKeyInfo PEM block, the
// same shape produced by Python's cryptography.hazmat serialization for a
// SECP256K1 key.
func MarshalPublicKeyPEM(pub *ecdsa.PublicKey) (string, error) {
	raw := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	algo, err := asn1.Marshal(oidSecp256k1)
	if err != nil {
		return "", err
	}
	info := ecPublicKeyInfo{
		Algo: pkix.AlgorithmIdentifier{
			Algorithm:  oidPublicKeyECDSA,
			Parameters: asn1.RawValue{FullBytes: algo},
		},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: len(raw) * 8},
	}
	der, err := asn1.Marshal(info)
	if err != nil {
		return "", err
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM decodes a SubjectPublicKeyInfo PEM block produced by
// MarshalPublicKeyPEM back into a secp256k1 public key.
func ParsePublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("core: invalid PEM block")
	}
	var info ecPublicKeyInfo
	if _, err := asn1.Unmarshal(block.Bytes, &info); err != nil {
		return nil, fmt.Errorf("core: malformed public key: %w", err)
	}
	curve := gethcrypto.S256()
	x, y := elliptic.Unmarshal(curve, info.PublicKey.Bytes)
	if x == nil {
		return nil, errors.New("core: malformed public key point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// SignContent signs the canonical encoding of content with priv, returning
// base64(ECDSA-SHA256).
func SignContent(priv *ecdsa.PrivateKey, content map[string]interface{}) (string, error) {
	digest, err := canonicalDigest(content)
	if err != nil {
		return "", err
	}
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest)
	if err != nil {
		return "", fmt.Errorf("core: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyContent verifies a base64(ECDSA-SHA256) signature over the
// canonical encoding of content against pubKeyPEM. It never panics and
// returns false (never an error) on any malformed input.
func VerifyContent(content map[string]interface{}, sigB64, pubKeyPEM string) bool {
	digest, err := canonicalDigest(content)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	pub, err := ParsePublicKeyPEM(pubKeyPEM)
	if err != nil {
		return false
	}
	return ecdsa.VerifyASN1(pub, digest, sig)
}

func canonicalDigest(content map[string]interface{}) ([]byte, error) {
	enc, err := canonicalEncode(content)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(enc)
	return sum[:], nil
}

// canonicalEncode renders v (expected to be a JSON-ish value built from
// map[string]interface{}, []interface{}, string, bool, nil, and numeric
// types) as canonical bytes: sorted object keys, no insignificant
// whitespace, decimal numbers with no trailing zeros.
func canonicalEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeCanonicalValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonicalValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Address:
		return encodeCanonicalValue(buf, string(t))
	case int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case float64:
		buf.WriteString(formatCanonicalNumber(t))
	case map[string]interface{}:
		return encodeCanonicalObject(buf, t)
	case map[Address]string:
		obj := make(map[string]interface{}, len(t))
		for k, v := range t {
			obj[string(k)] = v
		}
		return encodeCanonicalObject(buf, obj)
	case []string:
		arr := make([]interface{}, len(t))
		for i, s := range t {
			arr[i] = s
		}
		return encodeCanonicalArray(buf, arr)
	case []interface{}:
		return encodeCanonicalArray(buf, t)
	default:
		return fmt.Errorf("core: unsupported canonical value type %T", v)
	}
	return nil
}

func encodeCanonicalObject(buf *bytes.Buffer, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := encodeCanonicalValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeCanonicalArray(buf *bytes.Buffer, arr []interface{}) error {
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCanonicalValue(buf, v); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// formatCanonicalNumber renders a float64 as the shortest decimal with no
// trailing zeros, e.g. 100 -> "100", 0.001 -> "0.001".
func formatCanonicalNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func formatTimestamp(ts int64) string {
	return strconv.FormatInt(ts, 10)
}

// privateKeyFromSeed derives a secp256k1 scalar from a BIP-39 seed using a
// SLIP-0010-style HMAC-SHA512 master key, the same construction used for
// ed25519 HD wallets but reduced modulo the secp256k1 group order here
// since the ledger has no ed25519 transaction format.
func privateKeyFromSeed(seed []byte) (*ecdsa.PrivateKey, error) {
	curve := gethcrypto.S256()
	n := curve.Params().N
	mac := hmac.New(sha512.New, []byte("secp256k1 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	d := new(big.Int).SetBytes(sum[:32])
	d.Mod(d, n)
	if d.Sign() == 0 {
		return nil, errors.New("core: derived zero scalar, retry with different seed")
	}
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return priv, nil
}
