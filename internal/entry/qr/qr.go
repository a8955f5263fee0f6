package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-competitions/internal/models"
)

// EntryPass is the payload encoded into the QR image. It is what the door
// staff scanner decrypts to verify a ticket holder.
type EntryPass struct {
	UserID        string         `json:"userId"`
	CompetitionID int64          `json:"competitionId"`
	TicketNumbers models.IntList `json:"ticketNumbers"`
	IssuedAt      time.Time      `json:"issuedAt"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// GenerateEntryQR encrypts the pass and renders it as a QR PNG.
func (g *Generator) GenerateEntryQR(entry *models.UserEntry) ([]byte, error) {
	encrypted, err := g.EncryptPass(EntryPass{
		UserID:        entry.UserID,
		CompetitionID: entry.CompetitionID,
		TicketNumbers: entry.TicketNumbers,
		IssuedAt:      time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// EncryptPass produces the opaque string embedded in the QR image.
func (g *Generator) EncryptPass(pass EntryPass) (string, error) {
	data, err := json.Marshal(pass)
	if err != nil {
		return "", err
	}
	return encryptAES(data, g.secret)
}

// DecryptPass is the inverse of the encryption baked into the QR payload;
// used by scanner tooling and tests.
func (g *Generator) DecryptPass(encoded string) (*EntryPass, error) {
	plain, err := decryptAES(encoded, g.secret)
	if err != nil {
		return nil, err
	}

	var pass EntryPass
	if err := json.Unmarshal(plain, &pass); err != nil {
		return nil, err
	}
	return &pass, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, io.ErrUnexpectedEOF
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])

	return data, nil
}
