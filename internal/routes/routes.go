package routes

import (
	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/handlers"
	"rideshare-backend/internal/middleware"
	"rideshare-backend/internal/repository"
	"rideshare-backend/internal/services/fare"
	"rideshare-backend/internal/services/geocoding"

	"github.com/gin-gonic/gin"
)

// Dependencies все, что нужно обработчикам API
type Dependencies struct {
	Auth      *auth.Service
	Users     *repository.UserRepository
	Rides     *repository.RideRepository
	Bookings  *repository.BookingRepository
	Messages  *repository.MessageRepository
	Geocoder  *geocoding.Client
	Fare      *fare.Calculator
	UploadDir string

	// Уведомления, nil отключает
	BookingNotifier handlers.BookingNotifier
	MessageNotifier handlers.MessageNotifier
}

func SetupRoutes(api *gin.RouterGroup, deps Dependencies) {
	// Публичные маршруты для аутентификации
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", handlers.AuthSignup(deps.Auth))
		authGroup.POST("/confirm", handlers.AuthConfirmEmail(deps.Auth))
		authGroup.POST("/confirm/resend", handlers.AuthResendConfirmation(deps.Auth))
		authGroup.POST("/login", handlers.AuthLogin(deps.Auth))
		authGroup.GET("/oauth/:provider", handlers.AuthOAuthURL(deps.Auth))
		authGroup.GET("/oauth/:provider/callback", handlers.AuthOAuthCallback(deps.Auth))
	}

	// Без сессии список поездок пуст, но не 401
	optional := api.Group("")
	optional.Use(middleware.OptionalAuth(deps.Auth))
	{
		optional.GET("/rides", handlers.RideList(deps.Rides))
		optional.POST("/rides/search", handlers.RideSearch(deps.Rides))
	}

	// Защищенные маршруты (требуют аутентификации)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(deps.Auth))
	{
		protected.POST("/auth/logout", handlers.AuthLogout(deps.Auth))

		// Пользователь и профиль
		protected.GET("/user", handlers.UserGetProfile(deps.Auth))
		protected.GET("/profile", handlers.UserGetProfile(deps.Auth))
		protected.PUT("/profile", handlers.UserUpdateProfile(deps.Auth))
		protected.PUT("/fcm-token", handlers.UpdateFCMToken(deps.Users))
		protected.POST("/upload", handlers.UploadFile(deps.UploadDir))

		// Поездки
		protected.GET("/rides/mine", handlers.RideListMine(deps.Rides))
		protected.POST("/rides", handlers.RideCreate(deps.Rides))
		protected.GET("/rides/:id", handlers.RideGet(deps.Rides))
		protected.DELETE("/rides/:id", handlers.RideDelete(deps.Rides))

		// Стоимость и адреса
		protected.POST("/fare/estimate", handlers.FareEstimate(deps.Fare))
		protected.POST("/addresses/search", handlers.SearchAddress(deps.Geocoder))

		// Бронирования
		protected.POST("/bookings", handlers.BookingCreate(deps.Bookings, deps.BookingNotifier))
		protected.GET("/bookings", handlers.BookingList(deps.Bookings))
		protected.PUT("/bookings/:id/cancel", handlers.BookingCancel(deps.Bookings, deps.BookingNotifier))

		// Переписки
		protected.GET("/conversations", handlers.ConversationList(deps.Messages))
		protected.POST("/conversations", handlers.ConversationCreate(deps.Messages, deps.Users))
		protected.GET("/conversations/:id/messages", handlers.MessageList(deps.Messages))
		protected.POST("/conversations/:id/messages", handlers.MessageSend(deps.Messages, deps.Users, deps.MessageNotifier))
		protected.PUT("/conversations/:id/read", handlers.ConversationMarkRead(deps.Messages))
	}
}
