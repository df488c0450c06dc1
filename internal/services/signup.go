package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"regexp"
	"slices"
	"sync"
	"time"

	"tecnodash/internal/database"
	"tecnodash/internal/models"
	"tecnodash/pkg/cache"
	"tecnodash/pkg/cnpj"
	"tecnodash/pkg/config"
	apperrors "tecnodash/pkg/errors"
	"tecnodash/pkg/logger"
	"tecnodash/pkg/mailer"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/nyaruka/phonenumbers"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SignupState 注册流程状态
type SignupState string

const (
	StateAwaitingVerification SignupState = "AWAITING_VERIFICATION"
	StateVerified             SignupState = "VERIFIED"
	StateProvisioning         SignupState = "PROVISIONING"
	StateMigrating            SignupState = "MIGRATING"
	StatePersisting           SignupState = "PERSISTING"
	StateDone                 SignupState = "DONE"
	StateRollingBack          SignupState = "ROLLING_BACK"
	StateFailed               SignupState = "FAILED"
)

// 进度事件编号
const (
	StepEmailConfirmed = iota + 1
	StepDataChecked
	StepCompanyChecked
	StepDatabaseCreated
	StepSchemaMigrated
	StepTenantCreated
	StepRedirecting
	StepFailed
)

var stepMessages = map[int]string{
	StepEmailConfirmed:  "Email confirmado!",
	StepDataChecked:     "Verificando dados do cadastro...",
	StepCompanyChecked:  "Consultando informações da empresa...",
	StepDatabaseCreated: "Criando ambiente da empresa...",
	StepSchemaMigrated:  "Configurando banco de dados...",
	StepTenantCreated:   "Cadastro finalizado com sucesso!",
	StepRedirecting:     "Redirecionando para o login",
}

const (
	stagingKeyPrefix = "signup:verify:"
	codeMin          = 100000
	codeMax          = 999999
	suffixRange      = 5000

	msgAlreadyExists = "Já existe um cliente com este e-mail ou CNPJ."
	msgInvalidCNPJ   = "O CNPJ é inválido!"
	msgInvalidPhone  = "O telefone é inválido!"
	msgWrongCode     = "Código incorreto!"
	msgSignupExpired = "Sessão de cadastro expirada. Faça o pré-cadastro novamente."
)

var nonDigit = regexp.MustCompile(`\D`)

var (
	errSignupDraining    = errors.New("注册服务正在关闭")
	errTenantNotReadBack = errors.New("租户记录未返回主键")
)

// CompanyRegistry CNPJ查询
type CompanyRegistry interface {
	Lookup(ctx context.Context, cnpj string) (*cnpj.Company, error)
}

// Mailer 邮件发送
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// DatabaseProvisioner 租户库的创建和删除
type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
}

// PreSignupInput 预注册提交的数据
type PreSignupInput struct {
	CompanyName string
	Email       string
	Phone       string
	CNPJ        string
	Password    string
}

// PreSignupResult 写入验证Cookie所需的信息
type PreSignupResult struct {
	CookieValue string
	MaxAge      time.Duration
}

// StagingRecord 预注册暂存数据，只保存在缓存中
type StagingRecord struct {
	CompanyName string `json:"nomeEmpresa"`
	Email       string `json:"email"`
	Phone       string `json:"telefone"`
	CNPJ        string `json:"cnpj"`
	Password    string `json:"senha"`
	Code        string `json:"codigoAcessoEmail"`
}

// SignupDeps 注册服务依赖
type SignupDeps struct {
	Tenants     TenantStore
	Cache       *cache.Store
	Registry    CompanyRegistry
	Mailer      Mailer
	Provisioner DatabaseProvisioner
	Migrator    database.SchemaMigrator
	Database    config.DatabaseConfig
	Signup      config.SignupConfig
}

// SignupService 租户注册：预注册发送验证码，验证通过后创建独立数据库并写入主库
type SignupService struct {
	tenants     TenantStore
	cache       *cache.Store
	registry    CompanyRegistry
	mailer      Mailer
	provisioner DatabaseProvisioner
	migrator    database.SchemaMigrator
	dbCfg       config.DatabaseConfig
	signupCfg   config.SignupConfig

	now       func() time.Time
	randIntn  func(n int) int
	newCode   func() (string, error)
	newStaged func() string

	mu       sync.Mutex
	runs     sync.WaitGroup
	draining bool
}

// NewSignupService 创建注册服务
func NewSignupService(deps SignupDeps) *SignupService {
	return &SignupService{
		tenants:     deps.Tenants,
		cache:       deps.Cache,
		registry:    deps.Registry,
		mailer:      deps.Mailer,
		provisioner: deps.Provisioner,
		migrator:    deps.Migrator,
		dbCfg:       deps.Database,
		signupCfg:   deps.Signup,
		now:         time.Now,
		randIntn:    mathrand.Intn,
		newCode:     generateVerificationCode,
		newStaged:   uuid.NewString,
	}
}

// generateVerificationCode 生成 [100000, 999999] 内均匀分布的6位验证码
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}

func stagingKey(id string) string {
	return stagingKeyPrefix + id
}

// NormalizeCNPJ 去掉CNPJ中的非数字字符
func NormalizeCNPJ(value string) string {
	return nonDigit.ReplaceAllString(value, "")
}

// NormalizePhone 按巴西号码解析并格式化为 E.164
func NormalizePhone(value string) (string, error) {
	num, err := phonenumbers.Parse(value, "BR")
	if err != nil {
		return "", apperrors.InvalidInput(msgInvalidPhone)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", apperrors.InvalidInput(msgInvalidPhone)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// PreSignup 检查唯一性和CNPJ，发送验证码并暂存注册数据
func (s *SignupService) PreSignup(ctx context.Context, input PreSignupInput) (*PreSignupResult, error) {
	legalID := NormalizeCNPJ(input.CNPJ)
	phone, err := NormalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}

	exists, err := s.tenants.ExistsByEmailOrCNPJ(ctx, input.Email, legalID)
	if err != nil {
		return nil, apperrors.Internal("查询租户失败", err)
	}
	if exists {
		return nil, apperrors.Conflict(msgAlreadyExists)
	}

	company, err := s.registry.Lookup(ctx, legalID)
	if err != nil {
		return nil, err
	}
	if !company.Valid() {
		return nil, apperrors.InvalidInput(msgInvalidCNPJ)
	}

	code, err := s.newCode()
	if err != nil {
		return nil, apperrors.Internal("生成验证码失败", err)
	}

	msg, err := buildVerificationMail(input.Email, input.CompanyName, code, s.signupCfg.StagingTTL)
	if err != nil {
		return nil, apperrors.Internal("生成验证邮件失败", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return nil, apperrors.Internal("发送验证码失败", err)
	}

	stagingID := s.newStaged()
	record := StagingRecord{
		CompanyName: input.CompanyName,
		Email:       input.Email,
		Phone:       phone,
		CNPJ:        legalID,
		Password:    input.Password,
		Code:        code,
	}
	if err := s.cache.Set(ctx, stagingKey(stagingID), record, s.signupCfg.StagingTTL); err != nil {
		return nil, apperrors.Internal("暂存注册数据失败", err)
	}

	logger.GetLogger().WithFields(logrus.Fields{
		"staging_id": stagingID,
		"state":      StateAwaitingVerification,
	}).Info("预注册完成，等待邮箱验证")

	return &PreSignupResult{CookieValue: stagingID, MaxAge: s.signupCfg.StagingTTL}, nil
}

// StartCompletion 在后台执行注册流程，进程退出前需调用 Wait 等待流程和补偿结束
func (s *SignupService) StartCompletion(ctx context.Context, cookie, code string) *SignupStream {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return RunSignupStream(ctx, func(ctx context.Context, emit EventSink) error {
			err := apperrors.Internal("服务正在关闭", errSignupDraining)
			emit(ProgressEvent{Message: apperrors.PublicMessage(err), Step: StepFailed})
			return err
		})
	}
	s.runs.Add(1)
	s.mu.Unlock()

	return RunSignupStream(ctx, func(ctx context.Context, emit EventSink) error {
		defer s.runs.Done()
		return s.CompleteSignup(ctx, cookie, code, emit)
	})
}

// Wait 拒绝新的注册流程，并等待进行中的流程（包括补偿）全部结束
func (s *SignupService) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type undoStep struct {
	name string
	run  func(ctx context.Context) error
}

// signupRun 单次注册流程的状态
type signupRun struct {
	log   *logrus.Entry
	state SignupState
	emit  EventSink
	min   time.Duration
	start time.Time
	now   func() time.Time
	undo  []undoStep
}

func (r *signupRun) transition(next SignupState) {
	r.log.WithFields(logrus.Fields{"from": r.state, "to": next}).Info("注册状态变更")
	r.state = next
}

// completed 发送已完成步骤的事件，并保证每一步至少持续 min
func (r *signupRun) completed(step int) {
	r.emit(ProgressEvent{Message: stepMessages[step], Step: step})
	if r.min > 0 {
		if remaining := r.min - r.now().Sub(r.start); remaining > 0 {
			time.Sleep(remaining)
		}
	}
	r.start = r.now()
}

// CompleteSignup 校验验证码后依次创建数据库、迁移、写入租户记录；
// 数据库创建之后的任何失败都会按顺序执行补偿
func (s *SignupService) CompleteSignup(ctx context.Context, cookie, code string, emit EventSink) (err error) {
	run := &signupRun{
		log:   logger.WithComponent("signup").WithField("staging_id", cookie),
		state: StateAwaitingVerification,
		emit:  emit,
		min:   s.signupCfg.StepMinDuration,
		start: s.now(),
		now:   s.now,
	}

	defer func() {
		if err == nil {
			return
		}
		if len(run.undo) > 0 {
			run.transition(StateRollingBack)
			if compErr := s.compensate(ctx, run); compErr != nil {
				run.log.Errorf("补偿未全部成功: %v", compErr)
			}
		}
		run.transition(StateFailed)
		run.log.Warnf("注册失败: %v", err)
		emit(ProgressEvent{Message: apperrors.PublicMessage(err), Step: StepFailed})
	}()

	var staged StagingRecord
	found, err := s.cache.Get(ctx, stagingKey(cookie), &staged)
	if err != nil {
		return apperrors.Internal("读取注册暂存数据失败", err)
	}
	if !found {
		return apperrors.Unauthorized(msgSignupExpired)
	}

	if staged.Code != code {
		return apperrors.InvalidInput(msgWrongCode)
	}
	run.transition(StateVerified)
	run.completed(StepEmailConfirmed)

	suffix := fmt.Sprintf("%d_%d", s.now().UnixMilli(), s.randIntn(suffixRange))
	dbName := database.DeriveDBName(staged.CNPJ, suffix, s.dbCfg.TenantNameToken)
	if err := database.ValidateDBName(dbName); err != nil {
		return apperrors.Internal("生成租户库名失败", err)
	}
	connString, err := database.DeriveConnectionString(dbName, s.dbCfg.TenantURLTemplate, s.dbCfg.TenantPlaceholder)
	if err != nil {
		return apperrors.Internal("生成租户连接串失败", err)
	}
	run.log = run.log.WithField("database", dbName)

	passwordHash, err := models.HashPassword(staged.Password)
	if err != nil {
		return apperrors.Internal("密码哈希失败", err)
	}

	exists, err := s.tenants.ExistsByEmailOrCNPJ(ctx, staged.Email, staged.CNPJ)
	if err != nil {
		return apperrors.Internal("查询租户失败", err)
	}
	if exists {
		return apperrors.Conflict(msgAlreadyExists)
	}
	run.completed(StepDataChecked)

	company, err := s.registry.Lookup(ctx, staged.CNPJ)
	if err != nil {
		return err
	}
	if !company.Valid() {
		return apperrors.InvalidInput(msgInvalidCNPJ)
	}
	registryData, err := json.Marshal(company)
	if err != nil {
		return apperrors.Internal("序列化企业信息失败", err)
	}
	run.completed(StepCompanyChecked)

	run.transition(StateProvisioning)
	if err := s.provisioner.CreateDatabase(ctx, dbName); err != nil {
		return err
	}
	run.undo = append(run.undo, undoStep{
		name: "drop database",
		run: func(ctx context.Context) error {
			return s.provisioner.DropDatabase(ctx, dbName)
		},
	})
	run.completed(StepDatabaseCreated)

	run.transition(StateMigrating)
	output, err := s.migrator.Migrate(ctx, connString)
	if err != nil {
		return err
	}
	run.log.WithField("output", output).Debug("租户库迁移完成")
	run.completed(StepSchemaMigrated)

	run.transition(StatePersisting)
	tenant := &models.Tenant{
		CNPJ:         staged.CNPJ,
		Email:        staged.Email,
		CompanyName:  staged.CompanyName,
		Phone:        staged.Phone,
		PasswordHash: passwordHash,
		DBName:       dbName,
		Active:       true,
		RegistryData: datatypes.JSON(registryData),
		Redirects:    []models.TenantRedirect{{Email: staged.Email, DBName: dbName}},
	}
	if err := s.tenants.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict(msgAlreadyExists)
		}
		return apperrors.Internal("写入租户记录失败", err)
	}
	redirectIDs := tenant.RedirectUserIDs()
	run.undo = append(run.undo,
		undoStep{
			name: "delete redirects",
			run: func(ctx context.Context) error {
				return s.tenants.DeleteRedirects(ctx, redirectIDs)
			},
		},
		undoStep{
			name: "delete tenant",
			run: func(ctx context.Context) error {
				return s.tenants.DeleteTenant(ctx, tenant.TenantID)
			},
		},
	)
	// 主键未回读时记录可能已写入，按补偿流程撤销
	if tenant.TenantID == "" || len(redirectIDs) == 0 || slices.Contains(redirectIDs, 0) {
		return apperrors.Internal("写入租户记录失败", errTenantNotReadBack)
	}
	run.completed(StepTenantCreated)

	// 验证码只能使用一次
	if _, err := s.cache.Delete(ctx, stagingKey(cookie)); err != nil {
		run.log.Warnf("删除注册暂存数据失败: %v", err)
	}

	run.transition(StateDone)
	run.log.WithField("tenant_id", tenant.TenantID).Info("租户注册完成")
	emit(ProgressEvent{Message: stepMessages[StepRedirecting], Step: StepRedirecting})
	return nil
}

// compensate 按登记顺序逐个执行撤销操作，单步失败不影响后续步骤
func (s *SignupService) compensate(ctx context.Context, run *signupRun) error {
	detached := context.WithoutCancel(ctx)

	var result *multierror.Error
	for _, step := range run.undo {
		if err := step.run(detached); err != nil {
			run.log.WithField("undo", step.name).Errorf("补偿步骤失败: %v", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		run.log.WithField("undo", step.name).Info("补偿步骤完成")
	}
	return result.ErrorOrNil()
}
