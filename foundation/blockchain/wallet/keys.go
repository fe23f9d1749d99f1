package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyFile is a private key read from a key folder. The name comes from the
// file name without the .ecdsa extension.
type KeyFile struct {
	Name       string
	PrivateKey string
}

// LoadFolder reads every .ecdsa file under root.
func LoadFolder(root string) ([]KeyFile, error) {
	var keys []KeyFile

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		keys = append(keys, KeyFile{
			Name:       strings.TrimSuffix(path.Base(fileName), ".ecdsa"),
			PrivateKey: signature.FromECDSA(privateKey).PrivateKey,
		})

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })

	return keys, nil
}

// SaveKey writes the private key to <folder>/<name>.ecdsa.
func SaveKey(folder string, name string, privateKey *ecdsa.PrivateKey) (string, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", err
	}

	file := filepath.Join(folder, name+".ecdsa")
	if err := crypto.SaveECDSA(file, privateKey); err != nil {
		return "", fmt.Errorf("saving key: %w", err)
	}

	return file, nil
}

// LoadKey reads a single private key file.
func LoadKey(file string) (*ecdsa.PrivateKey, error) {
	return crypto.LoadECDSA(file)
}
