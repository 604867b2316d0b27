//go:build !unix

package secenv

func processSetid() bool {
	return false
}
