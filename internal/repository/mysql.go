package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lvdashuaibi/pollchain/config"
	"github.com/lvdashuaibi/pollchain/internal/model"
)

// MySQL唯一索引名，插入冲突时用于区分错误类型
const (
	uniqPollSequenceIndex = "uniq_poll_sequence"
	uniqPollVoterIndex    = "uniq_poll_voter"
	uniqReceiptCodeIndex  = "uniq_receipt_code"
)

const mysqlDuplicateEntryErrNo = 1062

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
}

func NewMySQLRepository() (*MySQLRepository, error) {
	masterDB, err := sql.Open("mysql", config.AppConfig.MySQL.Master)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	masterDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	masterDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB, err := sql.Open("mysql", config.AppConfig.MySQL.Slave)
	if err != nil {
		return nil, fmt.Errorf("连接从数据库失败: %w", err)
	}

	slaveDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	slaveDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	slaveDB.SetConnMaxLifetime(time.Hour)

	if err = slaveDB.Ping(); err != nil {
		log.Printf("从数据库连接测试失败: %v，将使用主数据库代替", err)
		slaveDB = masterDB
	}

	return &MySQLRepository{
		masterDB: masterDB,
		slaveDB:  slaveDB,
	}, nil
}

// GetPoll 获取投票活动元数据及其合法选项
func (r *MySQLRepository) GetPoll(pollID int64) (*model.Poll, error) {
	query := "SELECT id, title, status, closes_at, created_at FROM polls WHERE id = ?"
	row := r.slaveDB.QueryRow(query, pollID)

	var poll model.Poll
	err := row.Scan(&poll.ID, &poll.Title, &poll.Status, &poll.ClosesAt, &poll.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: 投票活动ID=%d", model.ErrPollNotFound, pollID)
		}
		return nil, fmt.Errorf("查询投票活动失败: %w", err)
	}

	optionRows, err := r.slaveDB.Query(
		"SELECT option_id FROM poll_options WHERE poll_id = ? ORDER BY option_id", pollID)
	if err != nil {
		return nil, fmt.Errorf("查询投票活动选项失败: %w", err)
	}
	defer optionRows.Close()

	for optionRows.Next() {
		var optionID int64
		if err := optionRows.Scan(&optionID); err != nil {
			return nil, fmt.Errorf("扫描投票活动选项失败: %w", err)
		}
		poll.OptionIDs = append(poll.OptionIDs, optionID)
	}
	if err := optionRows.Err(); err != nil {
		return nil, fmt.Errorf("迭代投票活动选项失败: %w", err)
	}

	return &poll, nil
}

// ListPollIDs 列出所有投票活动ID，供审计导出使用
func (r *MySQLRepository) ListPollIDs() ([]int64, error) {
	rows, err := r.slaveDB.Query("SELECT id FROM polls ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("查询投票活动列表失败: %w", err)
	}
	defer rows.Close()

	var pollIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("扫描投票活动ID失败: %w", err)
		}
		pollIDs = append(pollIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代投票活动ID失败: %w", err)
	}

	return pollIDs, nil
}

// GetLatestVoteRecord 获取某投票活动当前链尾记录，链为空时返回(nil, nil)。
// 走主库，保证追加方读到最新链尾。
func (r *MySQLRepository) GetLatestVoteRecord(pollID int64) (*model.VoteRecord, error) {
	query := `SELECT id, poll_id, sequence, option_id, voter_token, cast_at,
			 content_hash, link_hash, receipt_code, created_at
			 FROM vote_records
			 WHERE poll_id = ?
			 ORDER BY sequence DESC
			 LIMIT 1`

	record, err := scanVoteRecord(r.masterDB.QueryRow(query, pollID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("查询链尾记录失败: %w", err)
	}

	return record, nil
}

// InsertVoteRecord 在单个事务内校验链尾并插入新记录。
// 事务先用FOR UPDATE锁定链尾行，确认序号仍然衔接后再插入；
// 并发冲突由行锁和(poll_id, sequence)唯一索引双重兜底。
func (r *MySQLRepository) InsertVoteRecord(record *model.VoteRecord) error {
	tx, err := r.masterDB.Begin()
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	var tipSequence sql.NullInt64
	err = tx.QueryRow(
		"SELECT MAX(sequence) FROM vote_records WHERE poll_id = ? FOR UPDATE",
		record.PollID,
	).Scan(&tipSequence)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("锁定链尾失败: %w", err)
	}

	// 另一个追加方已经提交了同序号的记录，调用方需要重读链尾后重试
	if tipSequence.Valid && tipSequence.Int64 != record.Sequence-1 {
		tx.Rollback()
		return fmt.Errorf("%w: 期望链尾序号 %d，实际 %d",
			model.ErrSequenceConflict, record.Sequence-1, tipSequence.Int64)
	}
	if !tipSequence.Valid && record.Sequence != 0 {
		tx.Rollback()
		return fmt.Errorf("%w: 链为空但写入序号为 %d", model.ErrSequenceConflict, record.Sequence)
	}

	result, err := tx.Exec(
		`INSERT INTO vote_records
		 (poll_id, sequence, option_id, voter_token, cast_at, content_hash, link_hash, receipt_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.PollID,
		record.Sequence,
		record.OptionID,
		record.VoterToken,
		record.CastAt,
		record.ContentHash,
		record.LinkHash,
		record.ReceiptCode,
	)
	if err != nil {
		tx.Rollback()
		return wrapInsertError(err)
	}

	recordID, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("获取记录ID失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	record.ID = recordID
	return nil
}

// wrapInsertError 将MySQL唯一索引冲突映射为领域错误
func wrapInsertError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntryErrNo {
		switch {
		case strings.Contains(mysqlErr.Message, uniqPollVoterIndex):
			return fmt.Errorf("%w: %v", model.ErrDuplicateVoter, err)
		case strings.Contains(mysqlErr.Message, uniqPollSequenceIndex):
			return fmt.Errorf("%w: %v", model.ErrSequenceConflict, err)
		case strings.Contains(mysqlErr.Message, uniqReceiptCodeIndex):
			// 回执码碰撞概率极低，按冲突处理让调用方重试
			return fmt.Errorf("%w: 回执码冲突: %v", model.ErrSequenceConflict, err)
		}
	}
	return fmt.Errorf("插入投票记录失败: %w", err)
}

// GetVoteRecordsByPoll 按序号升序读取某投票活动的全部记录
func (r *MySQLRepository) GetVoteRecordsByPoll(pollID int64) ([]*model.VoteRecord, error) {
	query := `SELECT id, poll_id, sequence, option_id, voter_token, cast_at,
			 content_hash, link_hash, receipt_code, created_at
			 FROM vote_records
			 WHERE poll_id = ?
			 ORDER BY sequence ASC`

	rows, err := r.slaveDB.Query(query, pollID)
	if err != nil {
		return nil, fmt.Errorf("查询投票记录失败: %w", err)
	}
	defer rows.Close()

	var records []*model.VoteRecord
	for rows.Next() {
		record, err := scanVoteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描投票记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代投票记录失败: %w", err)
	}

	return records, nil
}

// GetVoteRecordByReceiptCode 按回执码查找投票记录，走唯一索引
func (r *MySQLRepository) GetVoteRecordByReceiptCode(receiptCode string) (*model.VoteRecord, error) {
	query := `SELECT id, poll_id, sequence, option_id, voter_token, cast_at,
			 content_hash, link_hash, receipt_code, created_at
			 FROM vote_records
			 WHERE receipt_code = ?`

	record, err := scanVoteRecord(r.slaveDB.QueryRow(query, receiptCode))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: 回执码 %s", model.ErrReceiptNotFound, receiptCode)
		}
		return nil, fmt.Errorf("按回执码查询投票记录失败: %w", err)
	}

	return record, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVoteRecord(row rowScanner) (*model.VoteRecord, error) {
	var record model.VoteRecord
	err := row.Scan(
		&record.ID,
		&record.PollID,
		&record.Sequence,
		&record.OptionID,
		&record.VoterToken,
		&record.CastAt,
		&record.ContentHash,
		&record.LinkHash,
		&record.ReceiptCode,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() {
	if r.masterDB != nil {
		r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
}
