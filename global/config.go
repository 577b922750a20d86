package global

import (
	"context"

	"PSession/data/database/mgo/mongoutil"
	mid "PSession/middleware"
	mgoSrv "PSession/service/mgo"
	redis "PSession/service/storage/redis"
	ids "PSession/tools/ids"
)

func ConfigAll() {
	ConfigIds()
	ConfigRedis()
	ConfigMgo()
}

func ConfigIds() {
	ids.SetNodeID(100)
}

func GetJwtSecret() []byte {
	b := []byte("mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=")
	return b
}

func ConfigRedis() {
	config := redis.Config{
		Addr: "127.0.0.1:6379", Password: "", DB: 0,
	}
	err := redis.InitRedis(config)
	if err != nil {
		return
	}
}

func ConfigMgo() {

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := &mongoutil.Config{
			Uri:         "mongodb://localhost:27017",
			Database:    "sessionCore",
			MaxPoolSize: 20,
			Username:    "root",
			Password:    "example",
			MaxRetry:    3,
		}

		mgoSrv.StartAsync(ctx, cfg)
		err := mgoSrv.WaitReady(ctx, mgoSrv.Manager())
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
		}
	}()

}

func ConfigMiddleware() {
	mid.Config()
}
