package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateNanoIDWithPrefix creates an entity ID like "dom_x4f9...".
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(idAlphabet, length)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}
