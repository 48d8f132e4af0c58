package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// Ошибки шифрования
var (
	ErrEmptyKey         = errors.New("encryption key cannot be empty")
	ErrInvalidToken     = errors.New("invalid token encoding")
	ErrTokenTooShort    = errors.New("token too short")
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")
)

// Формат токена (совместим с Fernet):
//
//	version (1 байт, 0x80) | timestamp (8 байт, big-endian unix) |
//	IV (16 байт) | AES-128-CBC ciphertext (PKCS#7) | HMAC-SHA256 (32 байта)
//
// Весь блок кодируется в URL-safe base64.
//
// ВАЖНО: это контракт на уровне байтов. Backend шифрует пароли MT5,
// worker на VPS расшифровывает их, обе стороны обязаны использовать
// ровно этот формат. Любое изменение ломает интероперабельность.
const (
	tokenVersion = 0x80

	versionLen = 1
	tsLen      = 8
	ivLen      = 16
	hmacLen    = 32

	// минимальный токен: заголовок + один блок AES + тег
	minTokenLen = versionLen + tsLen + ivLen + aes.BlockSize + hmacLen
)

// NormalizeKey приводит ключевую фразу к ровно 32 байтам:
// длинные обрезаются, короткие дополняются символом '0' справа.
// Первые 16 байт: ключ подписи HMAC, последние 16: ключ AES-128.
func NormalizeKey(passphrase string) []byte {
	key := []byte(passphrase)
	if len(key) > 32 {
		return key[:32]
	}
	for len(key) < 32 {
		key = append(key, '0')
	}
	return key
}

// Encrypt шифрует plaintext в Fernet-совместимый токен
// Возвращает URL-safe base64 строку для хранения в БД
func Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyKey
	}

	key := NormalizeKey(passphrase)
	signingKey, encryptionKey := key[:16], key[16:]

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", err
	}

	// PKCS#7 padding до размера блока
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)

	// Заголовок: версия + timestamp создания
	token := make([]byte, 0, versionLen+tsLen+ivLen+len(padded)+hmacLen)
	token = append(token, tokenVersion)
	token = binary.BigEndian.AppendUint64(token, uint64(time.Now().Unix()))

	// Случайный IV
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	token = append(token, iv...)

	// AES-128-CBC
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	token = append(token, ciphertext...)

	// HMAC-SHA256 по всем предшествующим байтам
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(token)
	token = mac.Sum(token)

	return base64.URLEncoding.EncodeToString(token), nil
}

// Decrypt расшифровывает токен, созданный Encrypt (или любой совместимой
// реализацией формата). HMAC проверяется в constant time ДО расшифровки.
// Любая ошибка верификации или padding возвращает ErrDecryptionFailed,
// вызывающий код обязан трактовать её как "credentials unusable",
// а не как фатальный сбой.
func Decrypt(token, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyKey
	}

	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	if len(data) < minTokenLen {
		return "", ErrTokenTooShort
	}

	if data[0] != tokenVersion {
		return "", ErrDecryptionFailed
	}

	key := NormalizeKey(passphrase)
	signingKey, encryptionKey := key[:16], key[16:]

	// Проверка HMAC тега (constant-time сравнение)
	body, tag := data[:len(data)-hmacLen], data[len(data)-hmacLen:]
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return "", ErrDecryptionFailed
	}

	iv := body[versionLen+tsLen : versionLen+tsLen+ivLen]
	ciphertext := body[versionLen+tsLen+ivLen:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(unpadded), nil
}

// pkcs7Pad дополняет данные до кратности blockSize
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad снимает и валидирует PKCS#7 padding
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, errors.New("invalid padding length")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding byte")
		}
	}
	return data[:len(data)-padLen], nil
}
