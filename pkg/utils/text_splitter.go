package utils

import "unicode"

// SplitText splits text into chunks of at most chunkSize runes with the given overlap.
// A chunk end is moved back to the nearest whitespace when one lies in the
// second half of the window, so words are not cut in half.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	totalLen := len(runes)
	if chunkSize <= 0 || totalLen <= chunkSize {
		return []string{text}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize // fallback if overlap >= chunkSize
	}

	var chunks []string
	for i := 0; i < totalLen; {
		end := i + chunkSize
		if end >= totalLen {
			chunks = append(chunks, string(runes[i:totalLen]))
			break
		}

		minEnd := end - chunkSize/2
		for j := end; j > minEnd; j-- {
			if unicode.IsSpace(runes[j-1]) {
				end = j
				break
			}
		}

		chunks = append(chunks, string(runes[i:end]))

		next := end - overlap
		if next <= i {
			next = i + step
		}
		i = next
	}

	return chunks
}
