package kvstore

import (
	"errors"
	"math"
	"strconv"
)

var errScriptRequiresRedis = errors.New("kvstore: script does not match this store implementation")

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
