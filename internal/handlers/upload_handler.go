package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rideshare-backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadSize = 5 << 20

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// UploadFile сохраняет фото профиля в uploadDir/ГГГГ/ММ/ДД и возвращает его URL
func UploadFile(uploadDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Файл не найден"})
			return
		}

		if file.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Файл слишком большой"})
			return
		}

		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedImageExts[ext] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Допустимы только изображения jpg, png и webp"})
			return
		}

		datePath := time.Now().Format("2006/01/02")
		dateDir := filepath.Join(uploadDir, filepath.FromSlash(datePath))
		if err := os.MkdirAll(dateDir, 0755); err != nil {
			logger.Log.WithError(err).Error("Ошибка при создании директории загрузок")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании директории"})
			return
		}

		fileName := uuid.NewString() + ext
		if err := c.SaveUploadedFile(file, filepath.Join(dateDir, fileName)); err != nil {
			logger.Log.WithError(err).Error("Ошибка при сохранении файла")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при сохранении файла"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"url": fmt.Sprintf("/uploads/%s/%s", datePath, fileName),
		})
	}
}
