// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

// AuthProtocol identifies the USM authentication protocol (RFC 3414 §6,
// extended by RFC 7860 for the SHA-2 family).
type AuthProtocol byte

const (
	AuthNone AuthProtocol = iota
	AuthMD5
	AuthSHA1
	AuthSHA224
	AuthSHA256
	AuthSHA384
	AuthSHA512
)

func (p AuthProtocol) newHash() hash.Hash {
	switch p {
	case AuthMD5:
		return md5.New()
	case AuthSHA1:
		return sha1.New()
	case AuthSHA224:
		return sha256.New224()
	case AuthSHA256:
		return sha256.New()
	case AuthSHA384:
		return sha512.New384()
	case AuthSHA512:
		return sha512.New()
	default:
		return nil
	}
}

// digestLen is the full HMAC output length, also the localized key length
// RFC 3414 Appendix A derives for this protocol.
func (p AuthProtocol) digestLen() int {
	h := p.newHash()
	if h == nil {
		return 0
	}
	return h.Size()
}

// macLen is the on-the-wire, possibly truncated, MAC length: 12 octets for
// the original RFC 3414 protocols, and the fixed RFC 7860 §4.2.1 table
// values (not half the digest) for the SHA-2 additions.
func (p AuthProtocol) macLen() int {
	switch p {
	case AuthMD5, AuthSHA1:
		return 12
	case AuthSHA224:
		return 16
	case AuthSHA256:
		return 24
	case AuthSHA384:
		return 32
	case AuthSHA512:
		return 48
	default:
		return 0
	}
}

// PrivProtocol identifies the USM privacy protocol: RFC 3414 §8 DES-CBC,
// the AES-CFB128 variants from draft-blumenthal-aes-usm-04 (RFC 3826 for
// AES-128, the 04 draft for the non-standard AES-192/256 variants), and
// the 3DES-EDE-CBC variant from draft-reeder-snmpv3-usm-3desede-00.
type PrivProtocol byte

const (
	PrivNone PrivProtocol = iota
	PrivDES
	Priv3DES
	PrivAES128
	PrivAES192
	PrivAES256
)

// keyLen is the raw key material length consumed from the (possibly
// extended) localized key.
func (p PrivProtocol) keyLen() int {
	switch p {
	case PrivDES:
		return 16 // 8 DES key + 8 pre-IV
	case Priv3DES:
		return 32 // 3*8 EDE keys + 8 pre-IV
	case PrivAES128:
		return 16
	case PrivAES192:
		return 24
	case PrivAES256:
		return 32
	default:
		return 0
	}
}

func (p PrivProtocol) saltLen() int {
	switch p {
	case PrivNone:
		return 0
	default:
		return 8
	}
}

// keyExtension identifies which non-standard key-extension algorithm must
// be applied when the localized key (bounded by the auth protocol's digest
// length) is shorter than the privacy protocol's required key length.
type keyExtension int

const (
	extensionNone keyExtension = iota
	extensionBlumenthal
	extensionReeder
)

func (p PrivProtocol) extension() keyExtension {
	switch p {
	case PrivAES192, PrivAES256:
		return extensionBlumenthal
	case Priv3DES:
		return extensionReeder
	default:
		return extensionNone
	}
}

// PasswordToKey implements the RFC 3414 Appendix A.2 password-to-key
// algorithm: the password is repeated to fill a 1 megabyte buffer, which is
// then hashed to produce Ku.
func PasswordToKey(password []byte, authProto AuthProtocol) []byte {
	h := authProto.newHash()
	if h == nil || len(password) == 0 {
		return nil
	}
	const megabyte = 1048576
	buf := make([]byte, 64)
	var count int
	passLen := len(password)
	for count < megabyte {
		for i := 0; i < 64; i++ {
			buf[i] = password[count%passLen]
			count++
		}
		h.Write(buf)
	}
	return h.Sum(nil)
}

// LocalizeKey implements the RFC 3414 Appendix A.2 key-localization step:
// Kul = Hash(Ku || engineID || Ku).
func LocalizeKey(ku []byte, engineID []byte, authProto AuthProtocol) []byte {
	h := authProto.newHash()
	if h == nil {
		return nil
	}
	h.Write(ku)
	h.Write(engineID)
	h.Write(ku)
	return h.Sum(nil)
}

// extendKey grows a localized key shorter than n bytes using the iterated
// hashing construction common to both the Blumenthal and Reeder key
// extension drafts: each successive block is the hash of the previous
// block, and the concatenation is truncated to n bytes.
func extendKey(localized []byte, authProto AuthProtocol, n int) []byte {
	if len(localized) >= n {
		return localized[:n]
	}
	out := append([]byte{}, localized...)
	prev := localized
	for len(out) < n {
		h := authProto.newHash()
		if h == nil {
			break
		}
		h.Write(prev)
		next := h.Sum(nil)
		out = append(out, next...)
		prev = next
	}
	return out[:n]
}

// derivePrivKey returns the raw key material a privacy protocol needs,
// applying key extension when the localized key is too short.
func derivePrivKey(localized []byte, authProto AuthProtocol, privProto PrivProtocol) []byte {
	need := privProto.keyLen()
	if privProto.extension() == extensionNone {
		if len(localized) < need {
			return nil
		}
		return localized[:need]
	}
	return extendKey(localized, authProto, need)
}

// computeMAC returns the truncated HMAC over data using the localized
// authentication key, per RFC 3414 §6.3.1 / RFC 7860 §4.2.
func computeMAC(authProto AuthProtocol, localizedKey []byte, data []byte) []byte {
	h := hmac.New(authProto.newHash, localizedKey)
	h.Write(data)
	sum := h.Sum(nil)
	return sum[:authProto.macLen()]
}

// verifyMAC recomputes the MAC over data and compares it, in constant
// time, against the MAC carried on the wire.
func verifyMAC(authProto AuthProtocol, localizedKey []byte, data []byte, wireMAC []byte) bool {
	expected := computeMAC(authProto, localizedKey, data)
	return hmac.Equal(expected, wireMAC)
}

func desIV(preIV [8]byte, salt uint64) []byte {
	var s [8]byte
	putUint64(s[:], salt)
	iv := make([]byte, 8)
	for i := 0; i < 8; i++ {
		iv[i] = preIV[i] ^ s[i]
	}
	return iv
}

func putUint64(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}

// EncryptScopedPDU encrypts plaintext per the chosen privacy protocol,
// returning ciphertext and the msgPrivacyParameters to place on the wire.
func EncryptScopedPDU(privProto PrivProtocol, localizedAuthKey []byte, authProto AuthProtocol, engineBoots, engineTime uint32, salt uint64, plaintext []byte) ([]byte, []byte, error) {
	key := derivePrivKey(localizedAuthKey, authProto, privProto)
	if key == nil {
		return nil, nil, &PrivacyError{Kind: PrivacyInvalidParams}
	}

	switch privProto {
	case PrivDES:
		var preIV [8]byte
		copy(preIV[:], key[8:16])
		iv := desIV(preIV, salt)
		block, err := des.NewCipher(key[:8])
		if err != nil {
			return nil, nil, &PrivacyError{Kind: PrivacyInvalidParams}
		}
		padded := pkcs7Pad(plaintext, des.BlockSize)
		ct := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
		pp := make([]byte, 8)
		putUint64(pp, salt)
		return ct, pp, nil

	case Priv3DES:
		var preIV [8]byte
		copy(preIV[:], key[24:32])
		iv := desIV(preIV, salt)
		block, err := des.NewTripleDESCipher(key[:24])
		if err != nil {
			return nil, nil, &PrivacyError{Kind: PrivacyInvalidParams}
		}
		padded := pkcs7Pad(plaintext, des.BlockSize)
		ct := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
		pp := make([]byte, 8)
		putUint64(pp, salt)
		return ct, pp, nil

	case PrivAES128, PrivAES192, PrivAES256:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, nil, &PrivacyError{Kind: PrivacyInvalidParams}
		}
		iv := make([]byte, aes.BlockSize)
		iv[0] = byte(engineBoots >> 24)
		iv[1] = byte(engineBoots >> 16)
		iv[2] = byte(engineBoots >> 8)
		iv[3] = byte(engineBoots)
		iv[4] = byte(engineTime >> 24)
		iv[5] = byte(engineTime >> 16)
		iv[6] = byte(engineTime >> 8)
		iv[7] = byte(engineTime)
		putUint64(iv[8:16], salt)
		ct := make([]byte, len(plaintext))
		cipher.NewCFBEncrypter(block, iv).XORKeyStream(ct, plaintext)
		pp := make([]byte, 8)
		putUint64(pp, salt)
		return ct, pp, nil

	default:
		return nil, nil, &PrivacyError{Kind: PrivacyUnsupportedProtocol}
	}
}

// DecryptScopedPDU reverses EncryptScopedPDU given the wire-carried
// msgPrivacyParameters (the salt).
func DecryptScopedPDU(privProto PrivProtocol, localizedAuthKey []byte, authProto AuthProtocol, engineBoots, engineTime uint32, privParams []byte, ciphertext []byte) ([]byte, error) {
	key := derivePrivKey(localizedAuthKey, authProto, privProto)
	if key == nil {
		return nil, &PrivacyError{Kind: PrivacyInvalidParams}
	}
	if len(privParams) != 8 {
		return nil, &PrivacyError{Kind: PrivacyInvalidParams}
	}
	var salt uint64
	for _, b := range privParams {
		salt = salt<<8 | uint64(b)
	}

	switch privProto {
	case PrivDES:
		var preIV [8]byte
		copy(preIV[:], key[8:16])
		iv := desIV(preIV, salt)
		block, err := des.NewCipher(key[:8])
		if err != nil {
			return nil, &PrivacyError{Kind: PrivacyInvalidParams}
		}
		if len(ciphertext)%des.BlockSize != 0 || len(ciphertext) == 0 {
			return nil, &PrivacyError{Kind: PrivacyDecryptFailure}
		}
		pt := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ciphertext)
		return pkcs7Unpad(pt)

	case Priv3DES:
		var preIV [8]byte
		copy(preIV[:], key[24:32])
		iv := desIV(preIV, salt)
		block, err := des.NewTripleDESCipher(key[:24])
		if err != nil {
			return nil, &PrivacyError{Kind: PrivacyInvalidParams}
		}
		if len(ciphertext)%des.BlockSize != 0 || len(ciphertext) == 0 {
			return nil, &PrivacyError{Kind: PrivacyDecryptFailure}
		}
		pt := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ciphertext)
		return pkcs7Unpad(pt)

	case PrivAES128, PrivAES192, PrivAES256:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, &PrivacyError{Kind: PrivacyInvalidParams}
		}
		iv := make([]byte, aes.BlockSize)
		iv[0] = byte(engineBoots >> 24)
		iv[1] = byte(engineBoots >> 16)
		iv[2] = byte(engineBoots >> 8)
		iv[3] = byte(engineBoots)
		iv[4] = byte(engineTime >> 24)
		iv[5] = byte(engineTime >> 16)
		iv[6] = byte(engineTime >> 8)
		iv[7] = byte(engineTime)
		copy(iv[8:16], privParams)
		pt := make([]byte, len(ciphertext))
		cipher.NewCFBDecrypter(block, iv).XORKeyStream(pt, ciphertext)
		return pt, nil

	default:
		return nil, &PrivacyError{Kind: PrivacyUnsupportedProtocol}
	}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &PrivacyError{Kind: PrivacyDecryptFailure}
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, &PrivacyError{Kind: PrivacyDecryptFailure}
	}
	return data[:len(data)-padLen], nil
}

// usmSecurityParameters is the USM msgSecurityParameters payload (RFC 3414
// §2.4): SEQUENCE{engineID, engineBoots, engineTime, userName, authParams,
// privParams}, itself carried as the content of an OCTET STRING.
type usmSecurityParameters struct {
	EngineID    []byte
	EngineBoots uint32
	EngineTime  uint32
	UserName    []byte
	AuthParams  []byte
	PrivParams  []byte
}

// marshalUSMSecurityParameters encodes p and also returns the byte offset,
// within the returned slice, where AuthParams' content begins. The caller
// uses this to splice in the real MAC after computing it over the fully
// assembled message (the MAC itself covers the message with AuthParams
// zeroed, per RFC 3414 §6.3.1).
func marshalUSMSecurityParameters(p usmSecurityParameters) (encoded []byte, authParamsOffset int) {
	body := make([]byte, 0, 64)
	body = encodeTLV(body, TagOctetString, p.EngineID)
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.EngineBoots)))
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.EngineTime)))
	body = encodeTLV(body, TagOctetString, p.UserName)

	authHeaderLen := len(encodeLength(nil, len(p.AuthParams))) + 1
	authParamsOffsetInBody := len(body) + authHeaderLen
	body = encodeTLV(body, TagOctetString, p.AuthParams)
	body = encodeTLV(body, TagOctetString, p.PrivParams)

	out := make([]byte, 0, len(body)+8)
	out = encodeTLV(out, TagSequence, body)
	outHeaderLen := len(out) - len(body)
	return out, outHeaderLen + authParamsOffsetInBody
}

// locateUSMAuthParams walks a raw v3 message far enough to return the
// byte offset and length of the msgAuthenticationParameters field within
// raw, without fully decoding the message. The caller zeroes that range
// before recomputing the MAC to verify (RFC 3414 §6.3.2 step 4), which
// requires the exact offset rather than a content search: a content
// search could in principle match the wrong occurrence if the MAC bytes
// happen to recur elsewhere in the message.
func locateUSMAuthParams(raw []byte) (offset int, length int, err error) {
	outer, err := expectTag(raw, TagSequence)
	if err != nil {
		return 0, 0, err
	}
	bodyOffset := outer.Consumed - len(outer.Value)
	rest := outer.Value

	verTLV, err := expectTag(rest, TagInteger)
	if err != nil {
		return 0, 0, err
	}
	rest = rest[verTLV.Consumed:]
	bodyOffset += verTLV.Consumed

	globalTLV, err := expectTag(rest, TagSequence)
	if err != nil {
		return 0, 0, err
	}
	rest = rest[globalTLV.Consumed:]
	bodyOffset += globalTLV.Consumed

	secParamsTLV, err := expectTag(rest, TagOctetString)
	if err != nil {
		return 0, 0, err
	}
	secParamsHeaderLen := secParamsTLV.Consumed - len(secParamsTLV.Value)
	secParamsContentOffset := bodyOffset + secParamsHeaderLen

	usmOuter, err := expectTag(secParamsTLV.Value, TagSequence)
	if err != nil {
		return 0, 0, err
	}
	usmBodyOffset := secParamsContentOffset + (usmOuter.Consumed - len(usmOuter.Value))
	usmRest := usmOuter.Value

	engineTLV, err := expectTag(usmRest, TagOctetString)
	if err != nil {
		return 0, 0, err
	}
	usmRest = usmRest[engineTLV.Consumed:]
	usmBodyOffset += engineTLV.Consumed

	bootsTLV, err := expectTag(usmRest, TagInteger)
	if err != nil {
		return 0, 0, err
	}
	usmRest = usmRest[bootsTLV.Consumed:]
	usmBodyOffset += bootsTLV.Consumed

	timeTLV, err := expectTag(usmRest, TagInteger)
	if err != nil {
		return 0, 0, err
	}
	usmRest = usmRest[timeTLV.Consumed:]
	usmBodyOffset += timeTLV.Consumed

	userTLV, err := expectTag(usmRest, TagOctetString)
	if err != nil {
		return 0, 0, err
	}
	usmRest = usmRest[userTLV.Consumed:]
	usmBodyOffset += userTLV.Consumed

	authTLV, err := expectTag(usmRest, TagOctetString)
	if err != nil {
		return 0, 0, err
	}
	authHeaderLen := authTLV.Consumed - len(authTLV.Value)
	return usmBodyOffset + authHeaderLen, len(authTLV.Value), nil
}

// unmarshalUSMSecurityParameters decodes the content of the
// msgSecurityParameters OCTET STRING into its USM fields.
func unmarshalUSMSecurityParameters(buf []byte) (usmSecurityParameters, error) {
	outer, err := expectTag(buf, TagSequence)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	rest := outer.Value
	var p usmSecurityParameters

	engineTLV, err := expectTag(rest, TagOctetString)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	p.EngineID = engineTLV.Value
	rest = rest[engineTLV.Consumed:]

	bootsTLV, err := expectTag(rest, TagInteger)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	boots, err := decodeUint32(bootsTLV.Value)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	p.EngineBoots = boots
	rest = rest[bootsTLV.Consumed:]

	timeTLV, err := expectTag(rest, TagInteger)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	engineTime, err := decodeUint32(timeTLV.Value)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	p.EngineTime = engineTime
	rest = rest[timeTLV.Consumed:]

	userTLV, err := expectTag(rest, TagOctetString)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	p.UserName = userTLV.Value
	rest = rest[userTLV.Consumed:]

	authTLV, err := expectTag(rest, TagOctetString)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	p.AuthParams = authTLV.Value
	rest = rest[authTLV.Consumed:]

	privTLV, err := expectTag(rest, TagOctetString)
	if err != nil {
		return usmSecurityParameters{}, err
	}
	p.PrivParams = privTLV.Value

	return p, nil
}
