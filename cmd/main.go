package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lvdashuaibi/pollchain/config"
	"github.com/lvdashuaibi/pollchain/internal/api/admin"
	"github.com/lvdashuaibi/pollchain/internal/api/graph"
	"github.com/lvdashuaibi/pollchain/internal/integrity"
	intkafka "github.com/lvdashuaibi/pollchain/internal/kafka"
	"github.com/lvdashuaibi/pollchain/internal/ledger"
	"github.com/lvdashuaibi/pollchain/internal/lock"
	"github.com/lvdashuaibi/pollchain/internal/receipt"
	"github.com/lvdashuaibi/pollchain/internal/repository"
	"github.com/lvdashuaibi/pollchain/internal/service"
)

const (
	ServiceStartLockName = "pollchain:service:start:lock"
	LockAcquireTimeout   = 30 * time.Second
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("配置加载成功，当前实例ID: %d", *instanceID)

	// 创建数据库连接
	mysqlRepo, err := repository.NewMySQLRepository()
	if err != nil {
		log.Fatalf("初始化MySQL仓库失败: %v", err)
	}
	defer mysqlRepo.Close()
	log.Printf("MySQL仓库初始化成功")

	// 创建Redis连接
	redisRepo, err := repository.NewRedisRepository()
	if err != nil {
		log.Fatalf("初始化Redis仓库失败: %v", err)
	}
	defer redisRepo.Close()
	log.Printf("Redis仓库初始化成功")

	// 创建分布式锁，后端由配置决定
	var distributedLock lock.Lock
	switch cfg.Ledger.LockBackend {
	case "redlock":
		distributedLock, err = lock.NewRedLock()
	default:
		distributedLock, err = lock.NewETCDLock()
	}
	if err != nil {
		log.Fatalf("初始化分布式锁失败: %v", err)
	}
	defer distributedLock.Close()
	log.Printf("分布式锁初始化成功，后端: %s", cfg.Ledger.LockBackend)

	// 获取服务启动锁，决定哪个实例担任完整性巡检者
	lockAcquired, err := distributedLock.AcquireLock(ServiceStartLockName, LockAcquireTimeout)
	if err != nil {
		log.Printf("获取服务启动锁失败: %v，将以非巡检者模式启动", err)
	}

	var isSweeper bool
	if lockAcquired {
		log.Printf("实例 %d 获取服务启动锁成功，将作为完整性巡检者启动", *instanceID)
		isSweeper = true
		defer distributedLock.ReleaseLock(ServiceStartLockName)
	} else {
		log.Printf("实例 %d 未获取到服务启动锁，以普通节点模式启动", *instanceID)
		isSweeper = false
	}

	// 创建Kafka生产者
	producer, err := intkafka.NewProducer()
	if err != nil {
		log.Fatalf("初始化Kafka生产者失败: %v", err)
	}
	defer producer.Close()
	log.Printf("Kafka生产者初始化成功")

	// 创建Kafka消费者
	consumer, err := intkafka.NewConsumer()
	if err != nil {
		log.Fatalf("初始化Kafka消费者失败: %v", err)
	}
	defer consumer.Stop()
	log.Printf("Kafka消费者初始化成功")

	// 创建账本和回执服务
	voteLedger := ledger.NewLedger(mysqlRepo, distributedLock)
	issuer := receipt.NewIssuer(mysqlRepo, redisRepo)
	log.Printf("账本服务初始化成功")

	// 创建完整性报告器和巡检器
	reporter := integrity.NewReporter(mysqlRepo, redisRepo)
	sweeper := integrity.NewSweeper(reporter, distributedLock, isSweeper)
	sweeper.Start()
	defer sweeper.Stop()
	log.Printf("完整性巡检器初始化成功，巡检者模式: %v", isSweeper)

	// 创建投票服务
	voteService := service.NewVoteService(mysqlRepo, voteLedger, issuer, producer, redisRepo)
	log.Printf("投票服务初始化成功")

	// 启动Kafka消费者
	consumer.StartConsuming(voteService.ProcessVoteEvent)
	log.Printf("Kafka消费者已启动")

	// 创建GraphQL服务（面向投票人）
	graphqlServer := graph.NewGraphQLServer(voteService, reporter)
	log.Printf("GraphQL服务初始化成功")

	// 创建管理API服务（面向运维）
	adminServer := admin.NewAdminServer(reporter)
	log.Printf("管理API服务初始化成功")

	// 计算端口，支持多实例
	graphqlPort := cfg.Server.GraphQLPort + *instanceID - 1
	adminPort := cfg.Server.AdminPort + *instanceID - 1

	// 启动HTTP服务器(异步)
	go func() {
		if err := graphqlServer.Start(graphqlPort); err != nil {
			log.Fatalf("启动GraphQL服务器失败: %v", err)
		}
	}()
	go func() {
		if err := adminServer.Start(adminPort); err != nil {
			log.Fatalf("启动管理API服务器失败: %v", err)
		}
	}()

	log.Printf("Pollchain 系统 (实例 %d) 已启动，投票服务: http://localhost:%d 管理服务: http://localhost:%d",
		*instanceID, graphqlPort, adminPort)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务...")
}
