package moderation

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadWords reads every .txt file in dir (one word per line, "#" starts a
// comment) and returns the unique word list. A missing directory is not an
// error: moderation is simply disabled.
func LoadWords(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	unique := make(map[string]struct{})
	var words []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		file, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Scanner handles both \n and \r\n line endings.
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			if _, ok := unique[word]; ok {
				continue
			}
			unique[word] = struct{}{}
			words = append(words, word)
		}
		err = scanner.Err()
		_ = file.Close()
		if err != nil {
			return nil, err
		}
	}
	return words, nil
}
