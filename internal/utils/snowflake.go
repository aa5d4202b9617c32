package utils

import (
	"hash/fnv"
	"os"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	snowflakeMu   sync.Mutex
	snowflakeNode *snowflake.Node
)

// SetSnowflakeNode pins the node id (0-1023). Call once at bootstrap.
func SetSnowflakeNode(id int64) error {
	n, err := snowflake.NewNode(id & 0x3FF)
	if err != nil {
		return err
	}
	snowflakeMu.Lock()
	snowflakeNode = n
	snowflakeMu.Unlock()
	return nil
}

func node() *snowflake.Node {
	snowflakeMu.Lock()
	defer snowflakeMu.Unlock()
	if snowflakeNode == nil {
		host, _ := os.Hostname()
		h := fnv.New32a()
		_, _ = h.Write([]byte(host))
		n, err := snowflake.NewNode(int64(h.Sum32()) & 0x3FF)
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		snowflakeNode = n
	}
	return snowflakeNode
}

// NextSnowflake returns a time ordered unique id in its decimal form.
func NextSnowflake() string {
	return node().Generate().String()
}
