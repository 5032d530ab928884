package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/ccfarm/seqbuf/buffer"
	"github.com/ccfarm/seqbuf/model"
)

func main() {
	addr := pflag.String("addr", "localhost:6379", "server address")
	n := pflag.Int("n", 100000, "number of records")
	pflag.Parse()

	rdb := redis.NewClient(&redis.Options{
		Addr: *addr,
	})
	defer rdb.Close()

	if err := run(rdb, *n); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(rdb *redis.Client, n int) error {
	start := time.Now()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < n; i += 1 {
		rank := newRank(i, created)
		if err := rdb.Set(key(i), rank.Encode().Bytes(), 0).Err(); err != nil {
			return errors.Wrapf(err, "set %s", key(i))
		}
	}

	for i := 0; i < n; i += 1 {
		raw, err := rdb.Get(key(i)).Bytes()
		if err != nil {
			return errors.Wrapf(err, "get %s", key(i))
		}

		var got model.FileRank
		if err := got.UnmarshalFrom(buffer.Wrap(raw)); err != nil {
			return errors.Wrapf(err, "decode %s", key(i))
		}
		want := newRank(i, created)
		if !want.Encode().Equal(got.Encode()) {
			return errors.Errorf("%s: got rank %d, want %d", key(i), got.PrimaryKey(), want.PrimaryKey())
		}
	}
	fmt.Println("set/get", time.Since(start))

	if n >= 2 {
		// the encodings first differ in the low byte of the primary key
		cmp, err := rdb.Do("COMPARE", key(0), key(1)).Result()
		if err != nil {
			return err
		}
		fmt.Println("COMPARE", key(0), key(1), "=", cmp)

		eq, err := rdb.Do("EQUAL", key(0), key(0)).Result()
		if err != nil {
			return err
		}
		if eq != int64(1) {
			return errors.Errorf("EQUAL of a key with itself = %v", eq)
		}
	}

	keys, err := rdb.Keys("*").Result()
	if err != nil {
		return err
	}
	if !sort.StringsAreSorted(keys) {
		return errors.New("KEYS not sorted")
	}
	fmt.Println("keys", len(keys), time.Since(start))
	return nil
}

func key(i int) string {
	return fmt.Sprintf("filerank:%08d", i)
}

func newRank(i int, created time.Time) *model.FileRank {
	r := &model.FileRank{}
	r.SetPrimaryKey(int64(i))
	r.SetGroupID(20)
	r.SetCompanyID(10)
	r.SetUserID(int64(i % 100))
	r.SetCreateDate(created.Add(time.Duration(i) * time.Second))
	r.SetFileEntryID(int64(1000 + i))
	r.SetActive(i%2 == 0)
	return r
}
