package testing

import (
	"math/rand"
	"strings"
)

// RandString generates random string with 10 symbols length from lower- and uppercase alphabet
func RandString() string {
	var out strings.Builder
	charSet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	length := 10
	for i := 0; i < length; i++ {
		random := rand.Intn(len(charSet))
		randomChar := charSet[random]
		out.WriteString(string(randomChar))
	}
	return out.String()
}

// RandEmail generates a random address for user fixtures
func RandEmail() string {
	return RandString() + "@example.com"
}

// PairWithEach pairs the first provided user id with each of the others,
// e.g. [1, 2, 3] -> [[1,2], [1,3]]. Handy for seeding two-party chats.
func PairWithEach(userIDs []int64) [][2]int64 {
	pairs := make([][2]int64, 0, len(userIDs)-1)
	for i := 1; i < len(userIDs); i++ {
		pairs = append(pairs, [2]int64{userIDs[0], userIDs[i]})
	}

	return pairs
}
