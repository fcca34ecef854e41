package guard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

func shellFromPasswd(uid string) (string, error) {
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return "", err
	}
	defer f.Close()
	return shellFromPasswdReader(f, uid)
}

// shellFromPasswdReader returns the login shell field for uid.
func shellFromPasswdReader(r io.Reader, uid string) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 || fields[2] != uid {
			continue
		}
		return fields[6], nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("uid %s not found in passwd", uid)
}
