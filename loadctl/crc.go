package loadctl

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// CRC16 计算Modbus RTU校验码：多项式0xA001，初始值0xFFFF，低字节在前发送。
func CRC16(frame []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range frame {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
