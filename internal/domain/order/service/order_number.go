package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const orderNoAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateOrderNo 生成 prefix + length 位大写 base36 随机串，例如 PEB-7K2QX9M
func GenerateOrderNo(prefix string, length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(orderNoAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		buf[i] = orderNoAlphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}
