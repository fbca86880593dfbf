package accounts

import (
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/fortiblox/stratus-builtins/internal/types"
)

// serializationVersion prefixes every serialized account.
const serializationVersion byte = 1

// Limits applied while decoding untrusted bytes.
const (
	maxFieldSize  = 10 * 1024 * 1024 // 10 MB
	maxEntryCount = 1 << 20
)

// Serialize encodes the account in canonical form. Map entries are written in
// sorted key order so equal accounts always serialize to equal bytes.
//
// Format (all integers little-endian):
//
//	version (1) | address (32) | nonce (8) | balance | username | code |
//	owner (32) | developer_rewards | storage_count (4) | {key, value}* |
//	token_count (4) | {token, last_nonce (8), role_count (4), {role}*,
//	instance_count (4), {instance}*}*
//
// Byte fields and big integers are length prefixed with a 4-byte length.
func (a *Account) Serialize() []byte {
	e := &encoder{}
	e.putByte(serializationVersion)
	e.putFixed(a.Address[:])
	e.putUint64(a.Nonce)
	e.putBig(a.Balance)
	e.putBytes(a.Username)
	e.putBytes(a.Code)
	e.putFixed(a.Owner[:])
	e.putBig(a.DeveloperRewards)

	keys := make([]string, 0, len(a.Storage))
	for k := range a.Storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.putUint32(uint32(len(keys)))
	for _, k := range keys {
		e.putBytes([]byte(k))
		e.putBytes(a.Storage[k])
	}

	tokens := a.SortedTokens()
	e.putUint32(uint32(len(tokens)))
	for _, token := range tokens {
		data := a.DCDT[token]
		e.putBytes([]byte(token))
		e.putUint64(data.LastNonce)
		roles := data.SortedRoles()
		e.putUint32(uint32(len(roles)))
		for _, role := range roles {
			e.putBytes([]byte(role))
		}
		nonces := data.SortedNonces()
		e.putUint32(uint32(len(nonces)))
		for _, nonce := range nonces {
			e.putInstance(data.Instances[nonce])
		}
	}
	return e.buf
}

// DeserializeAccount decodes an account produced by Serialize.
func DeserializeAccount(data []byte) (*Account, error) {
	d := &decoder{buf: data}
	if v := d.readByte(); v != serializationVersion {
		return nil, ErrInvalidData
	}

	acc := &Account{
		DCDT:    make(map[string]*TokenData),
		Storage: make(map[string][]byte),
	}
	copy(acc.Address[:], d.readFixed(types.AddressSize))
	acc.Nonce = d.readUint64()
	acc.Balance = d.readBig()
	acc.Username = d.readBytes()
	acc.Code = d.readBytes()
	copy(acc.Owner[:], d.readFixed(types.AddressSize))
	acc.DeveloperRewards = d.readBig()

	storageCount := d.readCount()
	for i := 0; i < storageCount && d.err == nil; i++ {
		k := d.readBytes()
		acc.Storage[string(k)] = d.readBytes()
	}

	tokenCount := d.readCount()
	for i := 0; i < tokenCount && d.err == nil; i++ {
		token := string(d.readBytes())
		td := newTokenData()
		td.LastNonce = d.readUint64()
		roleCount := d.readCount()
		for j := 0; j < roleCount && d.err == nil; j++ {
			td.Roles.Add(string(d.readBytes()))
		}
		instanceCount := d.readCount()
		for j := 0; j < instanceCount && d.err == nil; j++ {
			inst := d.readInstance()
			if inst != nil {
				td.Instances[inst.Nonce] = inst
			}
		}
		acc.DCDT[token] = td
	}

	if d.err != nil {
		return nil, d.err
	}
	if len(d.buf) != d.off {
		return nil, ErrInvalidData
	}
	return acc, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) putByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) putFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) putUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) putUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) putBig(v *big.Int) {
	e.putBytes(types.EncodeBigUint(v))
}

func (e *encoder) putInstance(inst *TokenInstance) {
	e.putUint64(inst.Nonce)
	e.putBig(inst.Balance)
	e.putBytes(inst.Name)
	e.putFixed(inst.Creator[:])
	e.putUint64(inst.Royalties)
	e.putBytes(inst.Hash)
	e.putBytes(inst.Attributes)
	e.putUint32(uint32(len(inst.URIs)))
	for _, uri := range inst.URIs {
		e.putBytes(uri)
	}
}

// decoder reads the canonical format. The first failure is sticky: all
// subsequent reads return zero values and err stays set.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = ErrInvalidData
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) readByte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) readFixed(n int) []byte {
	b := d.take(n)
	if b == nil {
		return make([]byte, n)
	}
	return b
}

func (d *decoder) readUint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) readUint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) readCount() int {
	n := d.readUint32()
	if n > maxEntryCount {
		d.err = ErrInvalidData
		return 0
	}
	return int(n)
}

func (d *decoder) readBytes() []byte {
	n := d.readUint32()
	if n > maxFieldSize {
		d.err = ErrInvalidData
		return nil
	}
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	if n == 0 {
		return nil
	}
	return cloneBytes(b)
}

func (d *decoder) readBig() *big.Int {
	return types.DecodeBigUint(d.readBytes())
}

func (d *decoder) readInstance() *TokenInstance {
	inst := &TokenInstance{}
	inst.Nonce = d.readUint64()
	inst.Balance = d.readBig()
	inst.Name = d.readBytes()
	copy(inst.Creator[:], d.readFixed(types.AddressSize))
	inst.Royalties = d.readUint64()
	inst.Hash = d.readBytes()
	inst.Attributes = d.readBytes()
	uriCount := d.readCount()
	for i := 0; i < uriCount && d.err == nil; i++ {
		uri := d.readBytes()
		if uri == nil {
			uri = []byte{}
		}
		inst.URIs = append(inst.URIs, uri)
	}
	if d.err != nil {
		return nil
	}
	return inst
}

