package frame

// CRC16 is the running transfer checksum: CRC-16/CCITT-FALSE (polynomial 0x1021,
// initial value 0xFFFF, no reflection, no output xor). The sender appends the final
// value big-endian to the transfer payload; because there is no output xor, a
// receiver that keeps updating the running checksum across those two trailing bytes
// ends at exactly zero for an intact transfer.
type CRC16 uint16

const crcInitial CRC16 = 0xFFFF

var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// NewCRC16 returns the initial running checksum value.
func NewCRC16() CRC16 {
	return crcInitial
}

// Update feeds data into the running checksum and returns the new value.
func (c CRC16) Update(data []byte) CRC16 {
	crc := uint16(c)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return CRC16(crc)
}

// Value returns the checksum over everything fed so far.
func (c CRC16) Value() uint16 {
	return uint16(c)
}

// Residue reports whether the running checksum has consumed an intact payload
// followed by its own big-endian value.
func (c CRC16) Residue() bool {
	return c == 0
}

// Checksum computes the transfer CRC of data in one call.
func Checksum(data []byte) uint16 {
	return NewCRC16().Update(data).Value()
}
