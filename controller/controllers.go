package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/justpiple/whatsapp-messaging-api/dao"
	"github.com/justpiple/whatsapp-messaging-api/log"
	"github.com/justpiple/whatsapp-messaging-api/router"
	"github.com/justpiple/whatsapp-messaging-api/service"
	"github.com/justpiple/whatsapp-messaging-api/service/dto"
	"github.com/justpiple/whatsapp-messaging-api/wa"
	"github.com/labstack/echo/v4"
)

// SendMessage godoc
// @Summary Send message
// @Description Queues an outbound message for delivery
// @Accept json
// @Produce json
// @Param message body dto.SendMessageRequest true "Message"
// @Success 202 {object} dto.JobAck
// @Failure 400 "error description"
// @Failure 503 "no capacity"
// @Router /messages [post]
func GetSendMessageFunc(srv service.Service) echo.HandlerFunc {

	return func(c echo.Context) error {
		msg := new(dto.SendMessageRequest)
		if err := c.Bind(msg); err != nil {
			return err
		}

		ack, err := srv.SendMessage(*msg, c.Request().Header.Get("X-Submitted-By"))
		if err != nil {
			switch {
			case isInvalidPayload(err):
				return c.String(http.StatusBadRequest, err.Error())
			case errors.Is(err, router.ErrNoCapacity):
				return c.String(http.StatusServiceUnavailable, err.Error())
			default:
				log.Error.Println(err)
				return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
			}
		}

		return c.JSON(http.StatusAccepted, ack)
	}
}

// CheckMessage godoc
// @Summary Check message
// @Description Returns the delivery status of a queued message
// @Produce json
// @Param id path int true "Message id"
// @Success 200 {object} dto.JobStatus
// @Failure 404 "message not found"
// @Router /messages/{id} [get]
func GetCheckMessageFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id32, err := pathId(c)
		if err != nil {
			return err
		}

		status, err := srv.CheckStatusOfMessage(id32)
		if err != nil {
			if err.Error() == "not found" {
				return c.String(http.StatusNotFound, "Message not found "+c.Param("id"))
			}
			log.Error.Println(err)
			return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
		}

		return c.JSON(http.StatusOK, status)
	}
}

// CancelMessage godoc
// @Summary Cancel message
// @Description Cancels a message that has not been picked up yet
// @Produce json
// @Param id path int true "Message id"
// @Success 200 "cancelled"
// @Failure 404 "message not found"
// @Failure 409 "message already picked up"
// @Router /messages/{id} [delete]
func GetCancelMessageFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id32, err := pathId(c)
		if err != nil {
			return err
		}

		ok, err := srv.CancelMessage(id32)
		if err != nil {
			if err.Error() == "not found" {
				return c.String(http.StatusNotFound, "Message not found "+c.Param("id"))
			}
			log.Error.Println(err)
			return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
		}
		if !ok {
			return c.String(http.StatusConflict, "Message already picked up "+c.Param("id"))
		}

		return c.NoContent(http.StatusOK)
	}
}

// RegisterAccount godoc
// @Summary Register account
// @Description Registers a sender account and returns its pairing code
// @Accept json
// @Produce json
// @Param account body dto.RegisterAccountRequest true "Account"
// @Success 201 {object} dto.AccountRegistration
// @Failure 400 "error description"
// @Failure 409 "phone already registered"
// @Router /accounts [post]
func GetRegisterAccountFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(dto.RegisterAccountRequest)
		if err := c.Bind(req); err != nil {
			return err
		}

		registration, err := srv.RegisterAccount(*req)
		if err != nil {
			switch {
			case isInvalidPayload(err):
				return c.String(http.StatusBadRequest, err.Error())
			case errors.Is(err, dao.ErrPhoneTaken):
				return c.String(http.StatusConflict, err.Error())
			default:
				log.Error.Println(err)
				return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
			}
		}

		return c.JSON(http.StatusCreated, registration)
	}
}

// ListAccounts godoc
// @Summary List accounts
// @Description Lists registered accounts with their connection state
// @Produce json
// @Success 200 {array} dto.AccountStatus
// @Router /accounts [get]
func GetListAccountsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		statuses, err := srv.ListAccounts()
		if err != nil {
			log.Error.Println(err)
			return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
		}

		return c.JSON(http.StatusOK, statuses)
	}
}

// CheckAccount godoc
// @Summary Check account
// @Description Returns the status of a registered account
// @Produce json
// @Param id path int true "Account id"
// @Success 200 {object} dto.AccountStatus
// @Failure 404 "account not found"
// @Router /accounts/{id} [get]
func GetCheckAccountFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id32, err := pathId(c)
		if err != nil {
			return err
		}

		status, err := srv.CheckStatusOfAccount(id32)
		if err != nil {
			if err.Error() == "not found" {
				return c.String(http.StatusNotFound, "Account not found "+c.Param("id"))
			}
			log.Error.Println(err)
			return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
		}

		return c.JSON(http.StatusOK, status)
	}
}

// RestartAccount godoc
// @Summary Restart account
// @Description Tears down and re-establishes the account connection
// @Produce json
// @Param id path int true "Account id"
// @Success 200 "restarted"
// @Failure 404 "account not found"
// @Router /accounts/{id}/restart [post]
func GetRestartAccountFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id32, err := pathId(c)
		if err != nil {
			return err
		}

		if err := srv.RestartAccount(id32); err != nil {
			if errors.Is(err, wa.ErrAccountNotFound) || err.Error() == "not found" {
				return c.String(http.StatusNotFound, "Account not found "+c.Param("id"))
			}
			log.Error.Println(err)
			return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
		}

		return c.NoContent(http.StatusOK)
	}
}

// RemoveAccount godoc
// @Summary Remove account
// @Description Logs the account out and removes it with its sessions
// @Produce json
// @Param id path int true "Account id"
// @Success 200 "removed"
// @Failure 404 "account not found"
// @Router /accounts/{id} [delete]
func GetRemoveAccountFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id32, err := pathId(c)
		if err != nil {
			return err
		}

		if err := srv.RemoveAccount(id32); err != nil {
			if errors.Is(err, wa.ErrAccountNotFound) || err.Error() == "not found" {
				return c.String(http.StatusNotFound, "Account not found "+c.Param("id"))
			}
			log.Error.Println(err)
			return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
		}

		return c.NoContent(http.StatusOK)
	}
}

func pathId(c echo.Context) (uint32, error) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(id64), nil
}

func isInvalidPayload(err error) bool {
	var invalid *service.InvalidPayloadErr
	return errors.As(err, &invalid)
}
