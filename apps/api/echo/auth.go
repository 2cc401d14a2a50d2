package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

var (
	// appJWTConfig is the default JWT auth middleware config.
	appJWTConfig = middleware.JWTConfig{
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "memberToken",
		Claims:        new(Claims),
	}
	contextMemberKey = "member"

	jwtConf struct {
		appName            string
		expirationDelta    time.Duration
		refreshExpiryDelta time.Duration
	}
)

func initJWTConfig(conf *core.Config) {
	appJWTConfig.SigningKey = []byte(conf.SecretKey)
	jwtConf.appName = conf.AppName
	jwtConf.expirationDelta = conf.Server.JWTExpirationDelta
	jwtConf.refreshExpiryDelta = conf.Server.JWTRefreshExpirationDelta
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	TelegramID   int64  `json:"telegram_id,omitempty"`
	Name         string `json:"name,omitempty"`
	Role         int    `json:"role,omitempty"`
	ClassID      *int   `json:"class_id,omitempty"`
}

// MemberID returns the numeric Subject; 0 when absent or malformed.
func (c Claims) MemberID() int {
	id, _ := strconv.Atoi(c.Subject)
	return id
}

func GetMemberClaims(mbr member.Member, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    jwtConf.appName,
			Subject:   strconv.Itoa(mbr.ID),
			Audience:  "SundaySchool",
			ExpiresAt: now.Add(jwtConf.expirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		TelegramID:   mbr.TelegramID,
		Name:         mbr.Name,
		Role:         int(mbr.Role),
		ClassID:      mbr.ClassID,
	}
	return claims
}

func authenticate(ctx echo.Context, telegramID int64, pwd string, svc *member.Service) (*Claims, error) {
	rctx := ctx.Request().Context()

	mbr, err := svc.GetByTelegramID(rctx, telegramID)
	if err != nil {
		if errors.Cause(err) == member.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding member by telegram id")
	}
	if err = mbr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if mbr.IsActive != nil && !*mbr.IsActive {
		return nil, errAccountDeactivated
	}
	mbr, err = svc.SetLastActive(rctx, mbr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastActive")
	}
	return GetMemberClaims(mbr), nil
}

// GenerateToken generates a signed JWT token string representing the member Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(appJWTConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(appJWTConfig.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextMember(ctx echo.Context, svc *member.Service, clms ...Claims) (member.Member, error) {
	if mbr, ok := ctx.Get(contextMemberKey).(member.Member); ok {
		return mbr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return member.Member{}, errors.Wrap(err, "getting context claims")
		}
	}

	mbr, err := svc.GetByID(ctx.Request().Context(), claims.MemberID())
	if err != nil {
		return member.Member{}, errors.Wrap(err, "finding member by ID")
	}
	ctx.Set(contextMemberKey, mbr)
	return mbr, nil
}

func refreshToken(ctx echo.Context, svc *member.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	mbr, err := getContextMember(ctx, svc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context member")
	}

	// check if member is still active
	if mbr.IsActive != nil && !*mbr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(jwtConf.refreshExpiryDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := GetMemberClaims(mbr, claims.OrigIssuedAt)
	token, err := GenerateToken(newClaims)
	return token, errors.Wrap(err, "generating token")
}
