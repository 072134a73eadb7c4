// auditor 离线审计工具：逐链重算哈希并输出完整性报告。
// 退出码 0=全部完好，1=存在断链，2=运行错误。
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/lvdashuaibi/pollchain/config"
	"github.com/lvdashuaibi/pollchain/internal/integrity"
	"github.com/lvdashuaibi/pollchain/internal/model"
	"github.com/lvdashuaibi/pollchain/internal/repository"
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	pollID     = flag.Int64("poll", 0, "只审计指定的投票活动ID，0表示审计全部")
	jsonOutput = flag.Bool("json", false, "以JSON格式输出报告")
)

func main() {
	flag.Parse()

	if _, err := config.LoadConfig(*configPath); err != nil {
		log.Printf("加载配置失败: %v", err)
		os.Exit(2)
	}

	mysqlRepo, err := repository.NewMySQLRepository()
	if err != nil {
		log.Printf("初始化MySQL仓库失败: %v", err)
		os.Exit(2)
	}
	defer mysqlRepo.Close()

	// 审计场景不走缓存，每份报告都是现算的
	reporter := integrity.NewReporter(mysqlRepo, nil)

	var reports []*model.IntegrityReport
	if *pollID > 0 {
		report, err := reporter.FullReport(*pollID)
		if err != nil {
			log.Printf("审计投票活动 %d 失败: %v", *pollID, err)
			os.Exit(2)
		}
		reports = append(reports, report)
	} else {
		err := reporter.ExportAllChains(func(report *model.IntegrityReport) error {
			reports = append(reports, report)
			return nil
		})
		if err != nil {
			log.Printf("审计失败: %v", err)
			os.Exit(2)
		}
	}

	if *jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(reports); err != nil {
			log.Printf("输出JSON报告失败: %v", err)
			os.Exit(2)
		}
	} else {
		printReports(reports)
	}

	for _, report := range reports {
		if !report.Valid {
			os.Exit(1)
		}
	}
}

func printReports(reports []*model.IntegrityReport) {
	invalidCount := 0
	for _, report := range reports {
		if report.Valid {
			fmt.Printf("投票活动 %d: 完好，共 %d 票\n", report.PollID, report.TotalVotes)
			continue
		}

		invalidCount++
		fmt.Printf("投票活动 %d: 损坏，共 %d 票，断链 %d 处\n",
			report.PollID, report.TotalVotes, len(report.BrokenLinks))
		for _, link := range report.BrokenLinks {
			fmt.Printf("  序号 %d (记录ID %d): %s\n", link.Sequence, link.RecordID, link.Reason)
		}
	}

	fmt.Printf("审计完成: 共 %d 条链，%d 条损坏\n", len(reports), invalidCount)
}
