package cnpj

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "tecnodash/pkg/errors"

	"github.com/go-resty/resty/v2"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Company 公共CNPJ查询接口的返回内容
type Company struct {
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	Name         string `json:"nome,omitempty"`
	TradeName    string `json:"fantasia,omitempty"`
	UF           string `json:"uf"`
	CEP          string `json:"cep"`
	Neighborhood string `json:"bairro"`
	Number       string `json:"numero"`
	City         string `json:"municipio"`
	Street       string `json:"logradouro"`
	Complement   string `json:"complemento"`
}

// Valid 查询结果是否为有效CNPJ
func (c *Company) Valid() bool {
	return c != nil && c.Status != StatusError
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client receitaws 查询客户端
type Client struct {
	httpClient *resty.Client
}

// NewClient 创建查询客户端
func NewClient(baseURL string, timeout time.Duration, retryCount int) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 只对限流和服务端错误重试
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{httpClient: client}
}

// Lookup 查询CNPJ；400/404 视为无效输入，其余失败视为内部错误
func (c *Client) Lookup(ctx context.Context, cnpj string) (*Company, error) {
	var company Company
	var failure errorBody

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("cnpj", cnpj).
		SetResult(&company).
		SetError(&failure).
		Get("/v1/cnpj/{cnpj}")
	if err != nil {
		return nil, apperrors.Internal("Erro ao consultar o CNPJ na API pública do governo", err)
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusNotFound:
		message := failure.Message
		if message == "" {
			message = "O CNPJ é inválido!"
		}
		return nil, apperrors.InvalidInput(message)
	case resp.IsError():
		return nil, apperrors.Internal("Erro ao consultar o CNPJ na API pública do governo",
			fmt.Errorf("status %d", resp.StatusCode()))
	}

	return &company, nil
}
