//go:build !unix

package platform

func diskAvailable(string) (int64, bool) {
	return 0, false
}
